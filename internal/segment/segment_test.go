package segment

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/sleuthkit/goewfacquire/internal/pool"
)

func newTestTable(t *testing.T, maxSegSize uint64) (*Table, *pool.Pool, string) {
	t.Helper()
	dir := t.TempDir()
	p := pool.New(pool.Unlimited)
	n := 0
	nameFn := func(idx int) (string, error) {
		n++
		return filepath.Join(dir, "seg")+pad3(idx), nil
	}
	tbl := New(p, nameFn)
	tbl.SetWritable(true)
	if maxSegSize != 0 {
		if err := tbl.SetMaxSegmentSize(maxSegSize); err != nil {
			t.Fatalf("SetMaxSegmentSize: %v", err)
		}
	}
	return tbl, p, dir
}

func pad3(i int) string {
	s := "000"
	digits := []byte(s)
	v := i
	for pos := len(digits) - 1; pos >= 0 && v > 0; pos-- {
		digits[pos] = byte('0' + v%10)
		v /= 10
	}
	return "." + string(digits)
}

func TestSingleSegmentUncappedGrowth(t *testing.T) {
	tbl, _, _ := newTestTable(t, 0)
	data := bytes.Repeat([]byte{0xAB}, 1<<20)
	n, err := tbl.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Fatalf("wrote %d, want %d", n, len(data))
	}
	if tbl.SegmentCount() != 1 {
		t.Fatalf("SegmentCount = %d, want 1 (max_segment_size=0 never splits)", tbl.SegmentCount())
	}
	if tbl.ValueSize() != uint64(len(data)) {
		t.Fatalf("ValueSize = %d, want %d", tbl.ValueSize(), len(data))
	}
}

func TestSplitSegmentGrowth(t *testing.T) {
	const segSize = 1 << 20 // 1,048,576
	tbl, _, _ := newTestTable(t, segSize)
	total := 10_000_000
	data := bytes.Repeat([]byte{0x5A}, total)
	n, err := tbl.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != total {
		t.Fatalf("wrote %d, want %d", n, total)
	}
	wantSegments := 10
	if tbl.SegmentCount() != wantSegments {
		t.Fatalf("SegmentCount = %d, want %d", tbl.SegmentCount(), wantSegments)
	}
	for i := 0; i < wantSegments-1; i++ {
		s, err := tbl.Segment(i)
		if err != nil {
			t.Fatalf("Segment(%d): %v", i, err)
		}
		if s.ByteSize != segSize {
			t.Fatalf("segment %d size = %d, want %d", i, s.ByteSize, segSize)
		}
	}
	last, _ := tbl.Segment(wantSegments - 1)
	wantLast := uint64(total) - uint64(segSize)*uint64(wantSegments-1)
	if last.ByteSize != wantLast {
		t.Fatalf("last segment size = %d, want %d", last.ByteSize, wantLast)
	}
}

func TestReadWriteRoundTripAcrossSegments(t *testing.T) {
	const segSize = 32 * 1024
	tbl, _, _ := newTestTable(t, segSize)
	data := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, segSize) // 4*segSize bytes
	if _, err := tbl.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := tbl.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	readBack := make([]byte, len(data))
	total := 0
	for total < len(readBack) {
		n, err := tbl.Read(readBack[total:])
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total != len(data) {
		t.Fatalf("read %d bytes, want %d", total, len(data))
	}
	if !bytes.Equal(readBack, data) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestReadAtEOFReturnsZero(t *testing.T) {
	tbl, _, _ := newTestTable(t, 0)
	if _, err := tbl.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := tbl.Seek(0, io.SeekEnd); err != nil {
		t.Fatalf("Seek end: %v", err)
	}
	buf := make([]byte, 10)
	n, err := tbl.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("Read at EOF = (%d, %v), want (0, nil)", n, err)
	}
}

func TestSeekBoundaries(t *testing.T) {
	tbl, _, _ := newTestTable(t, 0)
	if _, err := tbl.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, err := tbl.Seek(0, io.SeekEnd); err != nil || got != 10 {
		t.Fatalf("seek end = (%d, %v), want (10, nil)", got, err)
	}
	if _, err := tbl.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("seek to exactly ValueSize should succeed: %v", err)
	}
	if _, err := tbl.Seek(11, io.SeekStart); err == nil {
		t.Fatalf("seek past ValueSize should fail")
	}
}

func TestZeroLengthWriteIsNoOp(t *testing.T) {
	tbl, _, _ := newTestTable(t, 0)
	n, err := tbl.Write(nil)
	if err != nil || n != 0 {
		t.Fatalf("zero write = (%d, %v), want (0, nil)", n, err)
	}
	if tbl.ValueSize() != 0 {
		t.Fatalf("ValueSize = %d, want 0", tbl.ValueSize())
	}
}

func TestSetMaxSegmentSizeRejectsBelowMinimum(t *testing.T) {
	tbl, _, _ := newTestTable(t, 0)
	if err := tbl.SetMaxSegmentSize(MinSegmentSize - 1); err == nil {
		t.Fatalf("expected rejection below MinSegmentSize")
	}
	if err := tbl.SetMaxSegmentSize(0); err != nil {
		t.Fatalf("0 (uncapped) must be accepted: %v", err)
	}
}
