package lock

import (
	"sync"
	"time"
)

// ExitEvent is a settable, clearable, waitable flag. One event may be
// shared by several handles so that setting it aborts every acquisition
// currently polling against it, independent of any timeout. Unlike a Lock,
// an ExitEvent is safe for concurrent use.
type ExitEvent struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// NewExitEvent returns a cleared event.
func NewExitEvent() *ExitEvent {
	return &ExitEvent{ch: make(chan struct{})}
}

// Set raises the flag and unblocks every waiter.
func (e *ExitEvent) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		e.set = true
		close(e.ch)
	}
}

// Clear lowers the flag again, allowing acquisition to resume.
func (e *ExitEvent) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

// IsSet reports whether the flag is raised.
func (e *ExitEvent) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Done returns a channel that is closed while the flag is raised. Clear
// replaces the channel, so callers should re-fetch it per wait.
func (e *ExitEvent) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

// Wait blocks for at most d and reports whether the flag was raised.
func (e *ExitEvent) Wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-e.Done():
		return true
	case <-timer.C:
		return e.IsSet()
	}
}
