//go:build !windows

package daemon

import "syscall"

// Signal 0 tests if the process exists without sending a signal.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Stop asks the lock holder to shut down with SIGTERM.
func (l *Lock) Stop() (int, error) {
	pid, alive := l.Holder()
	if !alive {
		return pid, ErrNotRunning
	}
	return pid, syscall.Kill(pid, syscall.SIGTERM)
}
