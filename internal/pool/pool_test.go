package pool

import (
	"path/filepath"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := New(Unlimited)
	idx := p.NewEntry(filepath.Join(dir, "seg.000"), ModeWrite)

	if _, err := p.Write(idx, 0, []byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	size, err := p.Size(idx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 11 {
		t.Fatalf("size = %d, want 11", size)
	}

	buf := make([]byte, 5)
	n, err := p.Read(idx, 6, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Fatalf("Read = %q, want %q", buf[:n], "world")
	}
}

func TestLRUEviction(t *testing.T) {
	dir := t.TempDir()
	p := New(1)
	a := p.NewEntry(filepath.Join(dir, "a"), ModeWrite)
	b := p.NewEntry(filepath.Join(dir, "b"), ModeWrite)

	if _, err := p.Write(a, 0, []byte("A")); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if _, err := p.Write(b, 0, []byte("B")); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if p.openCount() != 1 {
		t.Fatalf("openCount = %d, want 1 under cap", p.openCount())
	}
	buf := make([]byte, 1)
	if _, err := p.Read(a, 0, buf); err != nil {
		t.Fatalf("read a after eviction of b: %v", err)
	}
	if buf[0] != 'A' {
		t.Fatalf("reopened entry a got %q, want A", buf)
	}
}

func TestWriteRejectedInReadMode(t *testing.T) {
	dir := t.TempDir()
	p := New(Unlimited)
	path := filepath.Join(dir, "ro")
	idx := p.NewEntry(path, ModeWrite)
	if _, err := p.Write(idx, 0, []byte("x")); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	p2 := New(Unlimited)
	ro := p2.NewEntry(path, ModeRead)
	if _, err := p2.Write(ro, 0, []byte("y")); err == nil {
		t.Fatalf("expected error writing to read-mode entry")
	}
}

func TestSizeOfUnopenedExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeded")
	p := New(Unlimited)
	idx := p.NewEntry(path, ModeWrite)
	if _, err := p.Write(idx, 0, []byte("0123456789")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.Close(idx); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2 := New(Unlimited)
	idx2 := p2.NewEntry(path, ModeRead)
	size, err := p2.Size(idx2)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 10 {
		t.Fatalf("size = %d, want 10", size)
	}
}
