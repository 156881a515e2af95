package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	shmerrors "github.com/fwkrumm/shmlock/v1/errors"
	"github.com/fwkrumm/shmlock/v1/metrics"
	"github.com/fwkrumm/shmlock/v1/shm"
	"github.com/fwkrumm/shmlock/v1/token"
	"github.com/fwkrumm/shmlock/v1/tracker"
)

var tracer = otel.Tracer("github.com/fwkrumm/shmlock/v1/lock")

// SegmentSize is the fixed payload of a lock segment: one token.
const SegmentSize = token.Size

// DefaultPollInterval is the delay between failed acquire attempts.
const DefaultPollInterval = 50 * time.Millisecond

// unbounded marks an acquire loop with no deadline.
const unbounded = time.Duration(-1)

// Lock is one handle on a named cross-process mutex. A handle is owned by
// a single goroutine; only the underlying named segment is shared.
type Lock struct {
	name         string
	description  string
	pollInterval time.Duration
	tok          token.Token
	exit         *ExitEvent
	provider     shm.Provider
	trk          *tracker.Tracker
	logger       *slog.Logger

	// seg is present iff this handle currently holds the lock.
	seg shm.Segment

	latencyHist  prometheus.Histogram
	traceEnabled bool
}

// Option configures a Lock.
type Option func(*Lock)

// WithPollInterval sets the delay between failed acquire attempts.
func WithPollInterval(d time.Duration) Option {
	return func(l *Lock) {
		l.pollInterval = d
	}
}

// WithExitEvent sets the cancellation flag checked on every poll tick. The
// same event may be shared across handles for coordinated abort.
func WithExitEvent(e *ExitEvent) Option {
	return func(l *Lock) {
		l.exit = e
	}
}

// WithProvider sets the segment backend. Defaults to the platform provider.
func WithProvider(p shm.Provider) Option {
	return func(l *Lock) {
		l.provider = p
	}
}

// WithTracker pins the handle to a specific tracker instead of the
// process-wide one.
func WithTracker(t *tracker.Tracker) Option {
	return func(l *Lock) {
		l.trk = t
	}
}

// WithLogger sets the logger. The lock logs acquire and release traffic at
// debug level only. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *Lock) {
		l.logger = log
	}
}

// WithDescription attaches a free-form description, reported by String.
func WithDescription(d string) Option {
	return func(l *Lock) {
		l.description = d
	}
}

// WithMetrics enables acquire latency collection using the provided
// registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *Lock) {
		l.latencyHist = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "shmlock_acquire_latency_seconds",
			Help:        "Latency of lock acquisitions",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"lock": l.name},
		})
		reg.MustRegister(l.latencyHist)
	}
}

// WithTracing enables OpenTelemetry tracing for acquire and release.
func WithTracing() Option {
	return func(l *Lock) {
		l.traceEnabled = true
	}
}

// New creates a handle on the named mutex. Configuration errors are
// reported here, never deferred.
func New(name string, opts ...Option) (*Lock, error) {
	l := &Lock{
		name:         name,
		pollInterval: DefaultPollInterval,
		tok:          token.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.name == "" {
		return nil, fmt.Errorf("%w: lock name must not be empty", shmerrors.ErrConfig)
	}
	if l.pollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive, got %v", shmerrors.ErrConfig, l.pollInterval)
	}
	if l.exit == nil {
		l.exit = NewExitEvent()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.provider == nil {
		p, err := shm.System()
		if err != nil {
			return nil, fmt.Errorf("lock %q: %w", l.name, err)
		}
		l.provider = p
	}
	l.logger.Debug("shmlock: handle initialized",
		"name", l.name, "token", l.tok, "poll_interval", l.pollInterval)
	return l, nil
}

// TryLock makes exactly one exclusive-create attempt and reports whether
// the lock was acquired. A conflict returns false immediately, without
// waiting a poll interval.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.attempt(ctx)
	if !ok && err == nil {
		metrics.ContentionCounter.Inc()
	}
	return ok, err
}

// Acquire blocks until the lock is acquired, the exit event is set or ctx
// is cancelled. An exit-event abort is reported as a plain false; ctx
// cancellation is propagated as an error.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.acquire(ctx, unbounded)
}

// AcquireTimeout is Acquire bounded by timeout. Timeout expiry is reported
// as a plain false, not an error; the observed wait is within one poll
// interval past the bound. A zero timeout degenerates to a single attempt.
// A negative timeout is a configuration error.
func (l *Lock) AcquireTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout < 0 {
		return false, fmt.Errorf("%w: timeout must not be negative, got %v", shmerrors.ErrConfig, timeout)
	}
	return l.acquire(ctx, timeout)
}

func (l *Lock) acquire(ctx context.Context, timeout time.Duration) (ok bool, err error) {
	var span trace.Span
	if l.traceEnabled {
		ctx, span = tracer.Start(ctx, "Lock.Acquire")
		span.SetAttributes(attribute.String("shmlock.name", l.name))
		defer func() {
			span.SetAttributes(attribute.Bool("shmlock.acquired", ok))
			span.End()
		}()
	}
	if l.latencyHist != nil {
		start := time.Now()
		defer func() {
			l.latencyHist.Observe(time.Since(start).Seconds())
		}()
	}

	start := time.Now()
	for !l.exit.IsSet() {
		ok, err := l.attempt(ctx)
		if ok || err != nil {
			return ok, err
		}
		metrics.ContentionCounter.Inc()
		if timeout != unbounded && time.Since(start) >= timeout {
			l.logger.Debug("shmlock: acquire timed out", "name", l.name, "timeout", timeout)
			return false, nil
		}
		l.logger.Debug("shmlock: lock taken, retrying",
			"name", l.name, "poll_interval", l.pollInterval, "timeout", timeout)
		if err := l.waitTick(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

// waitTick waits one poll interval, returning early when the exit event is
// set (checked again by the caller's loop condition) or ctx is cancelled.
func (l *Lock) waitTick(ctx context.Context) error {
	timer := time.NewTimer(l.pollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-l.exit.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attempt races one exclusive create and stamps the token on success.
func (l *Lock) attempt(ctx context.Context) (bool, error) {
	if l.seg != nil {
		return false, fmt.Errorf("%w: %s is held; release it first, and never share one handle between goroutines", shmerrors.ErrDeadlock, l)
	}
	// A cancellation that predates the attempt is a plain abort. Only a
	// cancellation arriving while the create is in flight needs the
	// diagnostic below.
	if err := ctx.Err(); err != nil {
		return false, err
	}

	seg, createErr := l.provider.CreateExclusive(l.name, SegmentSize)
	if ctxErr := ctx.Err(); ctxErr != nil && seg == nil {
		// Aborted while the create was in flight. The segment may or may
		// not have been left behind; classify, then propagate the
		// cancellation no matter what the diagnostic found.
		if diagErr := l.diagnose(); diagErr != nil {
			return false, errors.Join(diagErr, ctxErr)
		}
		return false, ctxErr
	}
	switch {
	case createErr == nil:
	case errors.Is(createErr, shm.ErrExist):
		return false, nil
	default:
		return false, fmt.Errorf("lock %q: exclusive create: %w", l.name, createErr)
	}

	// The segment exists all-zero until the token lands; the diagnostic
	// relies on that window being short.
	if _, err := seg.WriteAt(l.tok.Bytes(), 0); err != nil {
		_ = seg.Close()
		_ = l.provider.Unlink(l.name)
		return false, fmt.Errorf("lock %q: stamp token: %w", l.name, err)
	}
	if trk := l.trackerNow(); trk != nil {
		if err := trk.Add(l.name); err != nil {
			_ = seg.Close()
			_ = l.provider.Unlink(l.name)
			return false, err
		}
	}
	l.seg = seg
	metrics.AcquireCounter.Inc()
	metrics.HeldGauge.Inc()
	l.logger.Debug("shmlock: acquired", "name", l.name, "token", l.tok)
	return true, nil
}

// Release gives the lock back. It reports false without error when the
// handle does not hold the lock, making repeated calls harmless. A segment
// that is already gone counts as a successful release, since crash cleanup
// may legitimately have raced us; any other failure is surfaced and
// signals a potential leak. The tracker entry is removed regardless.
func (l *Lock) Release() (bool, error) {
	if l.seg == nil {
		return false, nil
	}
	if trk := l.trackerNow(); trk != nil {
		defer trk.Remove(l.name)
	}
	closeErr := l.seg.Close()
	unlinkErr := l.provider.Unlink(l.name)
	if errors.Is(unlinkErr, shm.ErrNotExist) {
		l.logger.Debug("shmlock: segment already gone on release", "name", l.name)
		unlinkErr = nil
	}
	l.seg = nil
	metrics.ReleaseCounter.Inc()
	metrics.HeldGauge.Dec()
	if closeErr != nil || unlinkErr != nil {
		return false, fmt.Errorf("%w: %s: %v", shmerrors.ErrRelease, l, errors.Join(closeErr, unlinkErr))
	}
	l.logger.Debug("shmlock: released", "name", l.name)
	return true, nil
}

// Do acquires the lock with an unbounded wait, runs fn and releases on
// every exit path. It is fail-loud: an acquisition aborted by the exit
// event reports ErrTimeout instead of silently skipping fn.
func (l *Lock) Do(ctx context.Context, fn func() error) error {
	return l.scoped(ctx, unbounded, fn)
}

// DoTimeout is Do bounded by timeout, reporting ErrTimeout when the lock
// could not be acquired within it.
func (l *Lock) DoTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	if timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %v", shmerrors.ErrConfig, timeout)
	}
	return l.scoped(ctx, timeout, fn)
}

func (l *Lock) scoped(ctx context.Context, timeout time.Duration, fn func() error) (err error) {
	ok, err := l.acquire(ctx, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", shmerrors.ErrTimeout, l)
	}
	defer func() {
		if _, rerr := l.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

// trackerNow resolves the tracker at call time: the pinned one if set,
// otherwise whatever process-wide tracker is currently initialized.
func (l *Lock) trackerNow() *tracker.Tracker {
	if l.trk != nil {
		return l.trk
	}
	return tracker.Current()
}

// Held reports whether this handle currently holds the lock.
func (l *Lock) Held() bool {
	return l.seg != nil
}

// Name returns the global identity of the mutex.
func (l *Lock) Name() string {
	return l.name
}

// PollInterval returns the delay between failed acquire attempts.
func (l *Lock) PollInterval() time.Duration {
	return l.pollInterval
}

// Token returns this handle's identity, the value stamped into the segment
// while the lock is held.
func (l *Lock) Token() token.Token {
	return l.tok
}

// ExitEvent returns the cancellation flag this handle polls against.
func (l *Lock) ExitEvent() *ExitEvent {
	return l.exit
}

// Description returns the free-form description, if any.
func (l *Lock) Description() string {
	return l.description
}

// SetDescription replaces the free-form description.
func (l *Lock) SetDescription(d string) {
	l.description = d
}

func (l *Lock) String() string {
	if l.description != "" {
		return fmt.Sprintf("Lock(name=%s, token=%s, desc=%s)", l.name, l.tok, l.description)
	}
	return fmt.Sprintf("Lock(name=%s, token=%s)", l.name, l.tok)
}

// OwnerToken reads the token of whoever currently holds the named mutex.
// It reports false when no segment exists. The result is advisory: the
// owner may release the lock at any moment after the read.
func (l *Lock) OwnerToken() (token.Token, bool, error) {
	seg, err := l.provider.Attach(l.name)
	if errors.Is(err, shm.ErrNotExist) {
		return token.Token{}, false, nil
	}
	if err != nil {
		return token.Token{}, false, fmt.Errorf("lock %q: read owner: %w", l.name, err)
	}
	defer seg.Close()
	buf := make([]byte, token.Size)
	if _, err := seg.ReadAt(buf, 0); err != nil {
		return token.Token{}, false, fmt.Errorf("lock %q: read owner: %w", l.name, err)
	}
	tok, err := token.FromBytes(buf)
	if err != nil {
		return token.Token{}, false, fmt.Errorf("lock %q: read owner: %w", l.name, err)
	}
	return tok, true, nil
}
