package lock

import (
	"errors"
	"fmt"
	"time"

	shmerrors "github.com/fwkrumm/shmlock/v1/errors"
	"github.com/fwkrumm/shmlock/v1/metrics"
	"github.com/fwkrumm/shmlock/v1/shm"
	"github.com/fwkrumm/shmlock/v1/token"
)

const (
	// danglingProbes is how often an all-zero segment is re-inspected
	// before it is classified as dangling.
	danglingProbes = 3
	// danglingProbeDelay is the pause between probes, long enough for a
	// live owner to finish stamping its token.
	danglingProbeDelay = 50 * time.Millisecond
)

// diagnose classifies the segment after an acquisition was aborted between
// issuing the exclusive create and recording success. It only classifies:
// it never unlinks a segment it cannot prove abandoned, and it never
// swallows the cancellation that triggered it (the caller propagates that).
//
// Outcomes:
//   - no segment exists: nothing was left behind, nil.
//   - a foreign token is stamped: someone else legitimately holds it, nil.
//   - all-zero across every probe: ErrDangling; cleanup must be manual or
//     tracker-driven.
//   - our own token is stamped: ErrInternal, since this handle never
//     recorded the acquisition.
//   - the segment can neither be attached nor recreated: ErrUnrecoverable.
func (l *Lock) diagnose() error {
	buf := make([]byte, token.Size)
	for probe := 0; probe < danglingProbes; probe++ {
		seg, err := l.provider.Attach(l.name)
		switch {
		case err == nil:
		case errors.Is(err, shm.ErrNotExist):
			return nil
		default:
			l.logger.Error("shmlock: segment is unusable, manual cleanup required",
				"name", l.name, "error", err)
			return fmt.Errorf("%w: %s: %v", shmerrors.ErrUnrecoverable, l, err)
		}

		_, readErr := seg.ReadAt(buf, 0)
		_ = seg.Close()
		if readErr != nil {
			return fmt.Errorf("%w: %s: %v", shmerrors.ErrUnrecoverable, l, readErr)
		}

		occupant, parseErr := token.FromBytes(buf)
		if parseErr != nil {
			return fmt.Errorf("%w: %s: %v", shmerrors.ErrUnrecoverable, l, parseErr)
		}
		if occupant.IsZero() {
			// Created but not stamped, by us or by someone else. Give the
			// owner time to finish before concluding anything.
			time.Sleep(danglingProbeDelay)
			continue
		}
		if occupant.Equal(l.tok) {
			// Unreachable by construction: the segment carries our token
			// but the handle never recorded the acquisition.
			return fmt.Errorf("%w: segment %q carries this handle's own token %s", shmerrors.ErrInternal, l.name, l.tok)
		}
		// Some other owner holds it; the interruption left nothing behind.
		l.logger.Debug("shmlock: segment legitimately owned elsewhere",
			"name", l.name, "owner", occupant)
		return nil
	}

	metrics.DanglingCounter.Inc()
	l.logger.Error("shmlock: segment stayed unstamped across all probes, assuming it is dangling",
		"name", l.name, "probes", danglingProbes)
	return fmt.Errorf("%w: %s stayed unstamped across %d probes", shmerrors.ErrDangling, l, danglingProbes)
}
