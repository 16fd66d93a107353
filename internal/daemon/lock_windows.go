//go:build windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// On Windows, FindProcess always succeeds; test with Signal(0) equivalent.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Stop kills the lock holder. Windows has no SIGTERM delivery.
func (l *Lock) Stop() (int, error) {
	pid, alive := l.Holder()
	if !alive {
		return pid, ErrNotRunning
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, fmt.Errorf("find process %d: %w", pid, err)
	}
	return pid, proc.Kill()
}
