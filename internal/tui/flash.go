package tui

import (
	"sync"
	"time"
)

// Flash holds transient notification messages.
type Flash struct {
	mu      sync.RWMutex
	message string
	isErr   bool
	expires time.Time
}

// Set stores a flash message that expires after the given duration.
func (f *Flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.isErr = false
	f.expires = time.Now().Add(d)
}

// SetError stores an error flash message.
func (f *Flash) SetError(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.isErr = true
	f.expires = time.Now().Add(d)
}

// Get returns the current flash message, or empty if expired.
func (f *Flash) Get() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return "", false
	}
	return f.message, f.isErr
}
