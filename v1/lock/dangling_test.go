package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	shmerrors "github.com/fwkrumm/shmlock/v1/errors"
	"github.com/fwkrumm/shmlock/v1/shm"
)

// cancelOnCreate cancels the acquisition while the exclusive create is in
// flight, modeling a process interrupted between issuing the create and
// recording its outcome.
type cancelOnCreate struct {
	shm.Provider
	cancel context.CancelFunc
}

func (p *cancelOnCreate) CreateExclusive(name string, size int) (shm.Segment, error) {
	p.cancel()
	return nil, errors.New("create aborted mid-flight")
}

// corruptAttach reports every segment as unmappable.
type corruptAttach struct {
	shm.Provider
}

func (p *corruptAttach) Attach(name string) (shm.Segment, error) {
	return nil, shm.ErrCorrupt
}

func interruptedLock(t *testing.T, p shm.Provider) (*Lock, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	wrapped := &cancelOnCreate{Provider: p, cancel: cancel}
	l, err := New("k", WithProvider(wrapped), WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	return l, ctx
}

func TestInterruptedNothingLeftBehind(t *testing.T) {
	l, ctx := interruptedLock(t, shm.NewMemory())
	ok, err := l.Acquire(ctx)
	if ok {
		t.Fatal("interrupted acquire must not succeed")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancellation to propagate, got %v", err)
	}
	if errors.Is(err, shmerrors.ErrDangling) {
		t.Fatalf("absent segment misclassified as dangling: %v", err)
	}
}

func TestInterruptedForeignOwnerIsBenign(t *testing.T) {
	mem := shm.NewMemory()
	owner, err := New("k", WithProvider(mem))
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, err := owner.TryLock(context.Background()); err != nil || !ok {
		t.Fatalf("owner trylock: %v ok %v", err, ok)
	}

	l, ctx := interruptedLock(t, mem)
	ok, err := l.Acquire(ctx)
	if ok {
		t.Fatal("interrupted acquire must not succeed")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancellation to propagate, got %v", err)
	}
	if errors.Is(err, shmerrors.ErrDangling) || errors.Is(err, shmerrors.ErrInternal) {
		t.Fatalf("legitimately owned segment misclassified: %v", err)
	}
	if ok, err := owner.Release(); err != nil || !ok {
		t.Fatalf("owner release: %v ok %v", err, ok)
	}
}

func TestInterruptedUnstampedSegmentIsDangling(t *testing.T) {
	mem := shm.NewMemory()
	// A segment that was created but never stamped: the creator died before
	// writing its token.
	if _, err := mem.CreateExclusive("k", SegmentSize); err != nil {
		t.Fatalf("plant segment: %v", err)
	}

	l, ctx := interruptedLock(t, mem)
	start := time.Now()
	ok, err := l.Acquire(ctx)
	if ok {
		t.Fatal("interrupted acquire must not succeed")
	}
	if !errors.Is(err, shmerrors.ErrDangling) {
		t.Fatalf("expected ErrDangling, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("the cancellation must still be visible, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*danglingProbeDelay {
		t.Fatalf("classified after %v, without exhausting the probe budget", elapsed)
	}

	// The diagnostic must not have unlinked the segment.
	if _, err := mem.Attach("k"); err != nil {
		t.Fatalf("segment should survive classification: %v", err)
	}
}

func TestInterruptedUnusableSegment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wrapped := &cancelOnCreate{Provider: &corruptAttach{Provider: shm.NewMemory()}, cancel: cancel}
	l, err := New("k", WithProvider(wrapped))
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	ok, aerr := l.Acquire(ctx)
	if ok {
		t.Fatal("interrupted acquire must not succeed")
	}
	if !errors.Is(aerr, shmerrors.ErrUnrecoverable) {
		t.Fatalf("expected ErrUnrecoverable, got %v", aerr)
	}
}

func TestDiagnoseOwnTokenIsInternalError(t *testing.T) {
	mem := shm.NewMemory()
	l, err := New("k", WithProvider(mem))
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	seg, err := mem.CreateExclusive("k", SegmentSize)
	if err != nil {
		t.Fatalf("plant segment: %v", err)
	}
	if _, err := seg.WriteAt(l.Token().Bytes(), 0); err != nil {
		t.Fatalf("stamp: %v", err)
	}

	// The handle never recorded an acquisition, so its own token on the
	// segment is an invariant violation.
	if err := l.diagnose(); !errors.Is(err, shmerrors.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}
