package shm

import (
	"errors"
	"testing"
)

// providerSemantics exercises the Provider contract shared by all backends.
func providerSemantics(t *testing.T, p Provider) {
	t.Helper()

	seg, err := p.CreateExclusive("seg", 16)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if seg.Name() != "seg" {
		t.Fatalf("name: got %q", seg.Name())
	}
	if _, err := p.CreateExclusive("seg", 16); !errors.Is(err, ErrExist) {
		t.Fatalf("expected ErrExist on second create, got %v", err)
	}

	payload := []byte("0123456789abcdef")
	if _, err := seg.WriteAt(payload, 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	view, err := p.Attach("seg")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	buf := make([]byte, 16)
	if _, err := view.ReadAt(buf, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != string(payload) {
		t.Fatalf("attached view read %q, want %q", buf, payload)
	}

	if _, err := seg.WriteAt([]byte("x"), 16); err == nil {
		t.Fatal("expected out of range write to fail")
	}
	if _, err := seg.ReadAt(buf, 1); err == nil {
		t.Fatal("expected out of range read to fail")
	}

	if err := view.Close(); err != nil {
		t.Fatalf("close view: %v", err)
	}
	if _, err := view.ReadAt(buf, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}

	if err := p.Unlink("seg"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if err := p.Unlink("seg"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist on second unlink, got %v", err)
	}
	if _, err := p.Attach("seg"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist on attach after unlink, got %v", err)
	}

	// The surviving mapping still works; only the name is gone.
	if _, err := seg.ReadAt(buf, 0); err != nil {
		t.Fatalf("read after unlink: %v", err)
	}
	if string(buf) != string(payload) {
		t.Fatalf("read after unlink got %q, want %q", buf, payload)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("close creator view: %v", err)
	}

	// The name is free again.
	seg2, err := p.CreateExclusive("seg", 16)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if err := seg2.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Unlink("seg"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
}

func TestMemoryProviderSemantics(t *testing.T) {
	providerSemantics(t, NewMemory())
}

func TestMemoryInvalidSize(t *testing.T) {
	if _, err := NewMemory().CreateExclusive("seg", 0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
