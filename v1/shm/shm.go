package shm

import "errors"

var (
	// ErrExist is reported by CreateExclusive when a segment with the given
	// name already exists. This is the normal contention signal, not a
	// failure.
	ErrExist = errors.New("shm: segment already exists")

	// ErrNotExist is reported by Attach and Unlink when no segment with the
	// given name exists.
	ErrNotExist = errors.New("shm: segment does not exist")

	// ErrCorrupt is reported by Attach for a segment that exists but cannot
	// be mapped, typically a zero-length artifact left behind by a killed
	// process. Such a segment can neither be attached to nor recreated and
	// must be removed manually.
	ErrCorrupt = errors.New("shm: segment exists but cannot be mapped")

	// ErrClosed is reported by segment I/O after Close.
	ErrClosed = errors.New("shm: segment is closed")

	// ErrUnsupported is reported by System on platforms without a shared
	// memory backend.
	ErrUnsupported = errors.New("shm: no shared memory provider on this platform")
)

// Segment is one process's view of a named shared memory block. Closing a
// segment releases only the local mapping; the block itself lives until it
// is unlinked.
type Segment interface {
	// Name returns the global name of the segment.
	Name() string
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(p []byte, off int64) (int, error)
	// WriteAt writes len(p) bytes starting at off.
	WriteAt(p []byte, off int64) (int, error)
	// Close releases this process's mapping without destroying the segment.
	Close() error
}

// Provider creates, attaches and destroys named segments.
type Provider interface {
	// CreateExclusive atomically creates a segment of the given size,
	// failing with ErrExist if the name is already taken.
	CreateExclusive(name string, size int) (Segment, error)
	// Attach opens an existing segment, failing with ErrNotExist if there
	// is none.
	Attach(name string) (Segment, error)
	// Unlink destroys the named segment. A second Unlink on the same name
	// fails with ErrNotExist; live attachments keep their mapping.
	Unlink(name string) error
}
