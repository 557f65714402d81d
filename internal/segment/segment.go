// Package segment implements SegmentTable: the logical byte-addressable
// volume striped across N segment files with a fixed maximum segment
// size. It maps logical offsets onto
// (pool_entry, offset) pairs and delegates actual I/O to a pool.Pool.
package segment

import (
	"io"
	"math"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
	"github.com/sleuthkit/goewfacquire/internal/pool"
)

// MinSegmentSize is the smallest non-zero maximum segment size accepted
// by SetMaxSegmentSize.
const MinSegmentSize = 32 * 1024

// NameFunc produces the filename for the next segment to be created
// during write-growth. segmentIndex is zero-based.
type NameFunc func(segmentIndex int) (string, error)

// Segment records one striped segment file's identity and current size.
type Segment struct {
	PoolEntry int
	ByteSize  uint64
}

// Table is the logical volume. It is not safe for concurrent use.
type Table struct {
	pool           *pool.Pool
	segments       []Segment
	maxSegmentSize uint64
	valueSize      uint64
	currentOffset  uint64
	nameFunc       NameFunc
	writable       bool
}

// New creates an empty table bound to p. nameFunc is consulted whenever
// a write needs to grow the volume with a new segment; it may be nil for
// read-only tables.
func New(p *pool.Pool, nameFunc NameFunc) *Table {
	return &Table{pool: p, nameFunc: nameFunc}
}

// SetWritable marks the table as open for write. Seek does not consult
// this flag: seeking past ValueSize is an error whether or not the table
// is writable.
func (t *Table) SetWritable(w bool) { t.writable = w }

// MaxSegmentSize returns the configured cap, or 0 for uncapped.
func (t *Table) MaxSegmentSize() uint64 { return t.maxSegmentSize }

// SetMaxSegmentSize sets the cap. Values below MinSegmentSize are
// rejected unless the value is exactly 0 (uncapped).
func (t *Table) SetMaxSegmentSize(n uint64) error {
	if n != 0 && n < MinSegmentSize {
		return ewferr.New(ewferr.ArgumentInvalid, "segment.SetMaxSegmentSize")
	}
	t.maxSegmentSize = n
	return nil
}

// ValueSize returns the volume's cumulative logical size.
func (t *Table) ValueSize() uint64 { return t.valueSize }

// CurrentOffset returns the current logical read/write cursor.
func (t *Table) CurrentOffset() uint64 { return t.currentOffset }

// SegmentCount returns the number of known segments.
func (t *Table) SegmentCount() int { return len(t.segments) }

// Segment returns a copy of the i'th segment record.
func (t *Table) Segment(i int) (Segment, error) {
	if i < 0 || i >= len(t.segments) {
		return Segment{}, ewferr.New(ewferr.ArgumentInvalid, "segment.Segment")
	}
	return t.segments[i], nil
}

// Resize pre-declares at least n segment slots, for read-mode
// pre-population via SetSegment. Existing slots are left untouched.
func (t *Table) Resize(n int) {
	for len(t.segments) < n {
		t.segments = append(t.segments, Segment{})
	}
}

// SetSegment installs a known segment (used at open for read mode).
func (t *Table) SetSegment(i int, poolEntry int, byteSize uint64) error {
	if i < 0 {
		return ewferr.New(ewferr.ArgumentInvalid, "segment.SetSegment")
	}
	if i >= len(t.segments) {
		t.Resize(i + 1)
	}
	t.segments[i] = Segment{PoolEntry: poolEntry, ByteSize: byteSize}
	t.recomputeValueSize()
	return nil
}

func (t *Table) recomputeValueSize() {
	var sum uint64
	for _, s := range t.segments {
		sum += s.ByteSize
	}
	t.valueSize = sum
}

// locate returns the segment index and intra-segment offset holding the
// given logical offset. offset must be strictly less than valueSize.
func (t *Table) locate(offset uint64) (int, uint64, error) {
	var acc uint64
	for i, s := range t.segments {
		if offset < acc+s.ByteSize {
			return i, offset - acc, nil
		}
		acc += s.ByteSize
	}
	return -1, 0, ewferr.New(ewferr.ArgumentInvalid, "segment.locate: offset out of range")
}

// CursorSegmentIndex returns the segment index containing the current
// offset, used by RawHandle.GetFilenameAtCurrentOffset. If the cursor
// sits exactly at end-of-volume, the last segment (or -1 if empty) is
// reported.
func (t *Table) CursorSegmentIndex() int {
	if len(t.segments) == 0 {
		return -1
	}
	if t.currentOffset >= t.valueSize {
		return len(t.segments) - 1
	}
	idx, _, err := t.locate(t.currentOffset)
	if err != nil {
		return len(t.segments) - 1
	}
	return idx
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Read starts at CurrentOffset and reads up to len(buf) bytes, possibly
// spanning multiple segments. A short return (less than len(buf)) is
// only permitted at end-of-volume; reading at or past ValueSize returns
// 0, nil.
func (t *Table) Read(buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		if t.currentOffset >= t.valueSize {
			break
		}
		idx, segOff, err := t.locate(t.currentOffset)
		if err != nil {
			return n, err
		}
		seg := t.segments[idx]
		avail := seg.ByteSize - segOff
		want := min64(avail, uint64(len(buf)-n))
		if want == 0 {
			break
		}
		got, err := t.pool.Read(seg.PoolEntry, int64(segOff), buf[n:n+int(want)])
		n += got
		t.currentOffset += uint64(got)
		if err != nil {
			return n, ewferr.Wrap(ewferr.IO, "segment.Read", err)
		}
		if uint64(got) < want {
			break
		}
	}
	return n, nil
}

// Write starts at CurrentOffset and writes up to len(buf) bytes. Writes
// landing before ValueSize overwrite existing segment data in place;
// writes at ValueSize grow the volume, creating new segments via
// NameFunc once the current last segment reaches MaxSegmentSize. A
// zero-length write is a no-op.
func (t *Table) Write(buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		rest := buf[n:]

		if t.currentOffset < t.valueSize {
			idx, segOff, err := t.locate(t.currentOffset)
			if err != nil {
				return n, err
			}
			seg := &t.segments[idx]
			avail := seg.ByteSize - segOff
			want := min64(avail, uint64(len(rest)))
			got, err := t.pool.Write(seg.PoolEntry, int64(segOff), rest[:want])
			n += got
			t.currentOffset += uint64(got)
			if err != nil {
				return n, ewferr.Wrap(ewferr.IO, "segment.Write", err)
			}
			if uint64(got) < want {
				return n, nil
			}
			continue
		}

		if len(t.segments) == 0 {
			if err := t.appendSegment(); err != nil {
				return n, err
			}
		}
		last := &t.segments[len(t.segments)-1]
		remaining := uint64(math.MaxUint64)
		if t.maxSegmentSize != 0 {
			remaining = t.maxSegmentSize - last.ByteSize
		}
		if remaining == 0 {
			if err := t.appendSegment(); err != nil {
				return n, err
			}
			continue
		}
		want := min64(remaining, uint64(len(rest)))
		got, err := t.pool.Write(last.PoolEntry, int64(last.ByteSize), rest[:want])
		last.ByteSize += uint64(got)
		t.valueSize += uint64(got)
		t.currentOffset += uint64(got)
		n += got
		if err != nil {
			return n, ewferr.Wrap(ewferr.IO, "segment.Write", err)
		}
		if uint64(got) < want {
			return n, nil
		}
	}
	return n, nil
}

func (t *Table) appendSegment() error {
	if t.nameFunc == nil {
		return ewferr.New(ewferr.SegmentNameFailed, "segment.appendSegment: no naming callback")
	}
	name, err := t.nameFunc(len(t.segments))
	if err != nil {
		return ewferr.Wrap(ewferr.SegmentNameFailed, "segment.appendSegment", err)
	}
	entryIdx := t.pool.NewEntry(name, pool.ModeWrite)
	t.segments = append(t.segments, Segment{PoolEntry: entryIdx, ByteSize: 0})
	return nil
}

// Seek repositions CurrentOffset. whence follows io.Seek* semantics.
// offset must satisfy 0 <= result <= ValueSize; seeking past end is
// always an error (resolving the source's inconsistent
// behavior uniformly in this direction).
func (t *Table) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(t.currentOffset) + offset
	case io.SeekEnd:
		target = int64(t.valueSize) + offset
	default:
		return 0, ewferr.New(ewferr.ArgumentInvalid, "segment.Seek: bad whence")
	}
	if target < 0 || uint64(target) > t.valueSize {
		return int64(t.currentOffset), ewferr.New(ewferr.ArgumentInvalid, "segment.Seek: out of range")
	}
	t.currentOffset = uint64(target)
	return target, nil
}
