// Package lock guards a profile directory against concurrent clients. Two
// hubchat processes on the same profile would each open a socket and the
// backend would deliver every event twice.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another process already holds the profile lock.
type HeldError struct {
	PID  int
	Path string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("profile lock held by PID %d (%s)", e.PID, e.Path)
}

// Lock is an acquired, exclusive profile lock backed by flock(2).
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock at path, non-blocking. On contention it reads the
// owner PID out of the file for diagnostics and returns a HeldError.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		_ = f.Close()
		return nil, &HeldError{PID: ownerPID(string(data)), Path: path}
	}

	// Record who holds it. Best effort: the flock is the authority, the
	// contents exist only for the error message above.
	if err := f.Truncate(0); err == nil {
		if _, err := f.Seek(0, 0); err == nil {
			fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
		}
	}

	return &Lock{f: f, path: path}, nil
}

// Release drops the lock and removes the file. Safe on a nil receiver and
// safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.f.Close()
	l.f = nil
	return err
}

func ownerPID(contents string) int {
	for _, line := range strings.Split(contents, "\n") {
		if after, ok := strings.CutPrefix(strings.TrimSpace(line), "pid="); ok {
			pid, _ := strconv.Atoi(after)
			return pid
		}
	}
	return 0
}
