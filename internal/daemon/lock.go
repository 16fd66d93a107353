// Package daemon keeps the reminder watcher to a single running instance.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned by Acquire when a live process holds the lock.
var ErrAlreadyRunning = errors.New("reminder daemon already running")

// ErrNotRunning is returned by Stop when no live process holds the lock.
var ErrNotRunning = errors.New("no reminder daemon running")

// Lock is a PID file naming the process that runs the reminder watcher.
type Lock struct {
	Path string
}

// NewLock creates a Lock for the PID file at path.
func NewLock(path string) *Lock {
	return &Lock{Path: path}
}

// Acquire records the current process in the PID file. A file left behind
// by a dead process is replaced.
func (l *Lock) Acquire() error {
	if pid, alive := l.Holder(); alive && pid != os.Getpid() {
		return fmt.Errorf("pid %d: %w", pid, ErrAlreadyRunning)
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return l.writePID(os.Getpid())
}

// Release removes the PID file if it still names the current process.
func (l *Lock) Release() error {
	pid, err := l.PID()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(l.Path)
}

// PID reads the process id from the PID file.
func (l *Lock) PID() (int, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Holder returns the PID in the file and whether that process is alive.
func (l *Lock) Holder() (int, bool) {
	pid, err := l.PID()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

func (l *Lock) writePID(pid int) error {
	return os.WriteFile(l.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}
