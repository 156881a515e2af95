// Package errors defines the error taxonomy shared by the shmlock packages.
// Sentinels are matched with errors.Is; raise sites add context by wrapping
// them with fmt.Errorf and %w.
package errors

import "errors"

var (
	// ErrConfig reports an invalid construction-time parameter, such as an
	// empty lock name or a non-positive poll interval. Constructors return
	// it synchronously, never deferred.
	ErrConfig = errors.New("shmlock: invalid configuration")

	// ErrDeadlock reports an acquire attempt on a handle that already holds
	// its lock. Handles are not reentrant.
	ErrDeadlock = errors.New("shmlock: lock already acquired by this handle")

	// ErrTimeout reports a failed acquisition in fail-loud mode. Plain
	// acquire calls report timeout as a false return instead.
	ErrTimeout = errors.New("shmlock: could not acquire lock")

	// ErrDangling reports a segment that exists but whose occupant could
	// not be proven alive. The segment is never unlinked automatically;
	// manual or tracker-driven cleanup is required.
	ErrDangling = errors.New("shmlock: potentially dangling shared memory segment")

	// ErrRelease reports a close or unlink failure other than "already
	// gone". It signals a potential resource leak.
	ErrRelease = errors.New("shmlock: could not release lock")

	// ErrInternal reports an invariant violation that should be unreachable
	// by construction, such as finding this handle's own token on a segment
	// it does not hold.
	ErrInternal = errors.New("shmlock: internal consistency violation")

	// ErrUnrecoverable reports a segment that can neither be attached to
	// nor recreated, typically a zero-length artifact left by a killed
	// process. Operator intervention is required.
	ErrUnrecoverable = errors.New("shmlock: segment requires manual cleanup")
)
