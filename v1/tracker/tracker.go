package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	shmerrors "github.com/fwkrumm/shmlock/v1/errors"
	"github.com/fwkrumm/shmlock/v1/metrics"
	"github.com/fwkrumm/shmlock/v1/shm"
)

// Tracker records the lock names currently held by this process. All
// methods are safe for concurrent use from multiple goroutines of the
// owning process.
type Tracker struct {
	mu       sync.Mutex
	pid      int
	held     map[string]struct{}
	provider shm.Provider
	logger   *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithProvider sets the segment provider used by Cleanup. Defaults to the
// platform provider.
func WithProvider(p shm.Provider) Option {
	return func(t *Tracker) {
		t.provider = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

var (
	currentMu sync.Mutex
	current   *Tracker
)

// Init returns the process-wide tracker, creating it on first use. Options
// are applied only by the call that actually creates it.
func Init(opts ...Option) *Tracker {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current != nil {
		return current
	}
	t := &Tracker{
		pid:  os.Getpid(),
		held: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.provider == nil {
		p, err := shm.System()
		if err != nil {
			t.logger.Warn("shmlock: no platform segment provider, cleanup will only drain the table", "error", err)
		}
		t.provider = p
	}
	current = t
	return t
}

// Current returns the process-wide tracker, or nil if Init has not been
// called.
func Current() *Tracker {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current
}

// Teardown discards the process-wide tracker without releasing anything.
// Locks still tracked at this point must be released by their handles.
func Teardown() {
	currentMu.Lock()
	t := current
	current = nil
	currentMu.Unlock()
	if t == nil {
		return
	}
	if held := t.Held(); len(held) > 0 {
		t.logger.Warn("shmlock: tracker torn down with locks still tracked", "held", held)
	}
}

// TeardownAndCleanup force-releases every tracked lock, then discards the
// tracker. Intended to be deferred from main.
func TeardownAndCleanup() {
	t := Current()
	if t == nil {
		return
	}
	t.Cleanup()
	Teardown()
}

// heldLocked returns the held set for the current pid. A forked child
// inherits the parent's table; entries belong to the parent and are dropped
// here so the child never releases locks it does not own.
func (t *Tracker) heldLocked() map[string]struct{} {
	if pid := os.Getpid(); pid != t.pid {
		t.pid = pid
		t.held = make(map[string]struct{})
	}
	return t.held
}

// Add records a successfully acquired lock name. Adding a name that is
// already tracked cannot happen by construction and reports ErrInternal.
func (t *Tracker) Add(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	held := t.heldLocked()
	if _, ok := held[name]; ok {
		return fmt.Errorf("%w: lock %q already tracked by pid %d", shmerrors.ErrInternal, name, t.pid)
	}
	held[name] = struct{}{}
	t.logger.Debug("shmlock: tracking lock", "name", name, "pid", t.pid)
	return nil
}

// Remove drops a lock name from the table, reporting whether it was
// present. Absence is tolerated since crash cleanup may race with a normal
// release.
func (t *Tracker) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	held := t.heldLocked()
	if _, ok := held[name]; !ok {
		return false
	}
	delete(held, name)
	t.logger.Debug("shmlock: untracking lock", "name", name, "pid", t.pid)
	return true
}

// Cleanup force-releases every tracked lock: best-effort attach, close and
// unlink, tolerating segments that are already gone. The table is drained
// regardless of individual outcomes.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name := range t.heldLocked() {
		delete(t.held, name)
		if t.provider == nil {
			continue
		}
		t.logger.Warn("shmlock: force-releasing lock held at process exit", "name", name, "pid", t.pid)
		seg, err := t.provider.Attach(name)
		switch {
		case err == nil:
			if err := seg.Close(); err != nil {
				t.logger.Warn("shmlock: cleanup close failed", "name", name, "error", err)
			}
		case errors.Is(err, shm.ErrNotExist):
			// released elsewhere in the meantime
			continue
		default:
			t.logger.Warn("shmlock: cleanup attach failed", "name", name, "error", err)
		}
		if err := t.provider.Unlink(name); err != nil && !errors.Is(err, shm.ErrNotExist) {
			t.logger.Error("shmlock: cleanup unlink failed, segment may leak", "name", name, "error", err)
			continue
		}
		metrics.CleanupCounter.Inc()
		metrics.HeldGauge.Dec()
	}
}

// Held returns the sorted names currently tracked for this process.
func (t *Tracker) Held() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	held := t.heldLocked()
	names := make([]string, 0, len(held))
	for name := range held {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pid returns the process id the tracker is scoped to.
func (t *Tracker) Pid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.heldLocked()
	return t.pid
}
