package shm

import (
	"fmt"
	"sync"
)

// Memory implements Provider using a process-local table. It reproduces the
// posix semantics, including views that stay readable after Unlink, and is
// mainly for tests and single-process setups where goroutines stand in for
// processes.
type Memory struct {
	mu   sync.Mutex
	segs map[string][]byte
}

// NewMemory returns a new empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{segs: make(map[string][]byte)}
}

// CreateExclusive implements Provider.CreateExclusive.
func (m *Memory) CreateExclusive(name string, size int) (Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid segment size %d", size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.segs[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrExist, name)
	}
	data := make([]byte, size)
	m.segs[name] = data
	return &memSegment{name: name, data: data, mu: &m.mu}, nil
}

// Attach implements Provider.Attach.
func (m *Memory) Attach(name string) (Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.segs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotExist, name)
	}
	return &memSegment{name: name, data: data, mu: &m.mu}, nil
}

// Unlink implements Provider.Unlink.
func (m *Memory) Unlink(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.segs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotExist, name)
	}
	delete(m.segs, name)
	return nil
}

type memSegment struct {
	name   string
	data   []byte
	mu     *sync.Mutex // provider mutex, serializes views like the kernel would
	closed bool
}

func (s *memSegment) Name() string { return s.name }

func (s *memSegment) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return 0, fmt.Errorf("shm: read out of range [%d:%d) of %d", off, off+int64(len(p)), len(s.data))
	}
	return copy(p, s.data[off:]), nil
}

func (s *memSegment) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return 0, fmt.Errorf("shm: write out of range [%d:%d) of %d", off, off+int64(len(p)), len(s.data))
	}
	return copy(s.data[off:], p), nil
}

func (s *memSegment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
