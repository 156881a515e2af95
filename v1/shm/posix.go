//go:build !windows

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// shmDir is where posix shared memory objects live on Linux. On systems
// without it the provider falls back to the default temp directory, which
// still yields file-backed shared mappings, just not RAM-backed ones.
const shmDir = "/dev/shm"

// Posix implements Provider with memory-mapped files and relies on
// O_CREAT|O_EXCL being atomic across processes, the same guarantee
// shm_open gives.
type Posix struct {
	dir string
}

// PosixOption configures a Posix provider.
type PosixOption func(*Posix)

// WithDir overrides the directory segments are created in. Intended for
// tests; all processes sharing a lock must agree on the directory.
func WithDir(dir string) PosixOption {
	return func(p *Posix) {
		p.dir = dir
	}
}

// NewPosix returns a provider backed by /dev/shm when available, otherwise
// by the default temp directory.
func NewPosix(opts ...PosixOption) *Posix {
	p := &Posix{}
	for _, opt := range opts {
		opt(p)
	}
	if p.dir == "" {
		if st, err := os.Stat(shmDir); err == nil && st.IsDir() {
			p.dir = shmDir
		} else {
			p.dir = os.TempDir()
		}
	}
	return p
}

func (p *Posix) path(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("shm: invalid segment name %q", name)
	}
	return filepath.Join(p.dir, name), nil
}

// CreateExclusive implements Provider.CreateExclusive.
func (p *Posix) CreateExclusive(name string, size int) (Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid segment size %d", size)
	}
	path, err := p.path(name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err == unix.EEXIST {
		return nil, fmt.Errorf("%w: %q", ErrExist, name)
	}
	if err != nil {
		return nil, fmt.Errorf("shm: create %q: %w", name, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path) // our own failed creation, safe to remove
		return nil, fmt.Errorf("shm: resize %q to %d: %w", name, size, err)
	}
	return p.mapSegment(fd, name, path, size, true)
}

// Attach implements Provider.Attach.
func (p *Posix) Attach(name string) (Segment, error) {
	path, err := p.path(name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err == unix.ENOENT {
		return nil, fmt.Errorf("%w: %q", ErrNotExist, name)
	}
	if err != nil {
		return nil, fmt.Errorf("shm: attach %q: %w", name, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("shm: attach %q: %w", name, err)
	}
	if st.Size == 0 {
		// Created but never sized: a process died between open and
		// ftruncate. Mapping zero bytes is impossible, so report it as a
		// distinct condition instead of ErrNotExist.
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %q", ErrCorrupt, name)
	}
	return p.mapSegment(fd, name, path, int(st.Size), false)
}

func (p *Posix) mapSegment(fd int, name, path string, size int, created bool) (Segment, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	_ = unix.Close(fd) // the mapping keeps the segment reachable
	if err != nil {
		if created {
			_ = unix.Unlink(path)
		}
		return nil, fmt.Errorf("shm: map %q: %w", name, err)
	}
	return &posixSegment{name: name, data: data}, nil
}

// Unlink implements Provider.Unlink.
func (p *Posix) Unlink(name string) error {
	path, err := p.path(name)
	if err != nil {
		return err
	}
	switch err := unix.Unlink(path); err {
	case nil:
		return nil
	case unix.ENOENT:
		return fmt.Errorf("%w: %q", ErrNotExist, name)
	default:
		return fmt.Errorf("shm: unlink %q: %w", name, err)
	}
}

type posixSegment struct {
	name string
	mu   sync.Mutex
	data []byte
}

func (s *posixSegment) Name() string { return s.name }

func (s *posixSegment) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return 0, fmt.Errorf("shm: read out of range [%d:%d) of %d", off, off+int64(len(p)), len(s.data))
	}
	return copy(p, s.data[off:]), nil
}

func (s *posixSegment) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return 0, fmt.Errorf("shm: write out of range [%d:%d) of %d", off, off+int64(len(p)), len(s.data))
	}
	return copy(s.data[off:], p), nil
}

func (s *posixSegment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("shm: unmap %q: %w", s.name, err)
	}
	return nil
}
