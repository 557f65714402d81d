// Package rawimage implements RawHandle: the split-raw opaque image
// abstraction that orchestrates a segment.Table and an infofile sidecar,
// It is the "raw" half of the engine's polymorphic
// input/output capability.
package rawimage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
	"github.com/sleuthkit/goewfacquire/internal/glob"
	"github.com/sleuthkit/goewfacquire/internal/infofile"
	"github.com/sleuthkit/goewfacquire/internal/pool"
	"github.com/sleuthkit/goewfacquire/internal/segment"
)

// ErrorRange is one recorded unreadable sector span, persisted as the
// "acquiry_errors" information_values entry.
type ErrorRange struct {
	StartSector uint64
	SectorCount uint64
}

// Access is a bitmask of the modes a Handle may be opened for.
type Access int

const (
	AccessRead Access = 1 << iota
	AccessWrite
)

func (a Access) has(flag Access) bool { return a&flag != 0 }

// MediaType and MediaFlags are persisted as the literal, case-sensitive
// strings on disk.
type MediaType string

const (
	MediaTypeUnknown   MediaType = "unknown"
	MediaTypeFixed     MediaType = "fixed"
	MediaTypeMemory    MediaType = "memory"
	MediaTypeOptical   MediaType = "optical"
	MediaTypeRemovable MediaType = "removable"
)

type MediaFlags string

const (
	MediaFlagsLogical  MediaFlags = "logical"
	MediaFlagsPhysical MediaFlags = "physical"
)

// Handle is the opaque split-raw image. Created empty via New, it
// transitions through Open and is closed exactly once via Close.
type Handle struct {
	basename string
	table    *segment.Table
	pool     *pool.Pool

	infoPath string

	mediaSize           uint64
	totalSegmentsTarget int32

	readInitialized  bool
	writeInitialized bool
	writeInfoOnClose bool

	access Access

	mediaValues         *infofile.ValueTable
	informationValues   *infofile.ValueTable
	integrityHashValues *infofile.ValueTable

	errorRanges []ErrorRange
}

// New creates an unopened Handle.
func New() *Handle {
	return &Handle{
		mediaValues:         infofile.NewValueTable(),
		informationValues:   infofile.NewValueTable(),
		integrityHashValues: infofile.NewValueTable(),
	}
}

func basenameOf(path string) string {
	base := path
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		suf := base[idx+1:]
		if isAllDigits(suf) {
			base = base[:idx]
		}
	}
	if idx := strings.LastIndex(base, "."); idx >= 0 && strings.EqualFold(base[idx+1:], "raw") {
		base = base[:idx]
	}
	return base
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func segmentName(basename string, index int, totalTarget int32) string {
	if totalTarget <= 1 {
		return basename + ".raw"
	}
	return fmt.Sprintf("%s.raw.%03d", basename, index)
}

// Open binds the handle to one or more on-disk paths for the requested
// access.
func (h *Handle) Open(paths []string, access Access) error {
	h.access = access
	poolMode := pool.ModeRead
	if access.has(AccessWrite) {
		if access.has(AccessRead) {
			poolMode = pool.ModeReadWrite
		} else {
			poolMode = pool.ModeWrite
		}
	}

	if access.has(AccessRead) {
		if len(paths) == 0 {
			return ewferr.New(ewferr.ArgumentInvalid, "rawimage.Open: no paths for read access")
		}
		h.basename = basenameOf(paths[0])

		resolved := paths
		if len(paths) == 1 {
			var err error
			resolved, err = glob.Resolve(paths[0], pool.Exists)
			if err != nil {
				return err
			}
		}

		h.pool = pool.New(pool.Unlimited)
		h.table = segment.New(h.pool, h.makeNameFunc())
		h.table.Resize(len(resolved))
		var cumulative uint64
		for i, p := range resolved {
			entryIdx := h.pool.NewEntry(p, poolMode)
			size, err := h.pool.Size(entryIdx)
			if err != nil {
				return err
			}
			if err := h.table.SetSegment(i, entryIdx, uint64(size)); err != nil {
				return err
			}
			cumulative += uint64(size)
		}
		h.mediaSize = cumulative
		h.readInitialized = true

		h.infoPath = h.basename + ".raw.info"
		if pool.Exists(h.infoPath) {
			if err := h.loadInfoFile(); err != nil {
				return err
			}
		}

		if access.has(AccessWrite) {
			h.writeInfoOnClose = true
			h.table.SetWritable(true)
		}
		return nil
	}

	// Write-only: a single basename, segment creation deferred to first write.
	if len(paths) != 1 {
		return ewferr.New(ewferr.ArgumentInvalid, "rawimage.Open: write-only requires exactly one basename")
	}
	h.basename = paths[0]
	h.pool = pool.New(pool.Unlimited)
	h.table = segment.New(h.pool, h.makeNameFunc())
	h.table.SetWritable(true)
	h.infoPath = h.basename + ".raw.info"
	h.writeInfoOnClose = true
	return nil
}

// OpenResume reopens an existing write-mode image for continuing an
// acquisition interrupted mid-run: it resolves the existing segments,
// restores the originally configured media_size (and every other
// info-file value) rather than the partial on-disk total Open's normal
// read path would report, and positions the write cursor at the end of
// the existing data. It returns that existing byte count so the caller
// can skip the equivalent amount of source input.
func (h *Handle) OpenResume(basename string) (uint64, error) {
	first := basename + ".raw"
	if !pool.Exists(first) {
		first = basename + ".raw.000"
	}
	if err := h.Open([]string{first}, AccessRead|AccessWrite); err != nil {
		return 0, err
	}
	resumeOffset := h.mediaSize
	if v, ok := h.mediaValues.Get("media_size"); ok {
		target, err := v.Uint64Value()
		if err != nil {
			return 0, err
		}
		h.mediaSize = target
	}
	// A prior run's --segment-size cap isn't itself persisted, but every
	// segment before the last is always filled to exactly that cap, so
	// it can be recovered from the first segment's size whenever more
	// than one segment already exists.
	if h.table.SegmentCount() > 1 {
		first, err := h.table.Segment(0)
		if err != nil {
			return 0, err
		}
		if err := h.table.SetMaxSegmentSize(first.ByteSize); err != nil {
			return 0, err
		}
	}
	if _, err := h.table.Seek(int64(resumeOffset), 0); err != nil {
		return 0, err
	}
	return resumeOffset, nil
}

func (h *Handle) makeNameFunc() segment.NameFunc {
	return func(index int) (string, error) {
		return segmentName(h.basename, index, h.totalSegmentsTarget), nil
	}
}

func (h *Handle) loadInfoFile() error {
	f, err := infofile.Open(h.infoPath, infofile.ModeRead)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.ReadSection("media_values", h.mediaValues); err != nil {
		return err
	}
	if _, err := f.ReadSection("information_values", h.informationValues); err != nil {
		return err
	}
	if _, err := f.ReadSection("integrity_hash_values", h.integrityHashValues); err != nil {
		return err
	}
	if v, ok := h.informationValues.Get("acquiry_errors"); ok {
		ranges, err := parseErrorRanges(v.StringValue())
		if err != nil {
			return err
		}
		h.errorRanges = ranges
	}
	return nil
}

// AppendReadError records an unreadable sector range, persisting the
// accumulated list into the information_values "acquiry_errors" entry
// (the raw format has no separate error-table section).
func (h *Handle) AppendReadError(startSector, sectorCount uint64) error {
	h.errorRanges = append(h.errorRanges, ErrorRange{StartSector: startSector, SectorCount: sectorCount})
	return h.informationValues.SetString("acquiry_errors", formatErrorRanges(h.errorRanges))
}

// ErrorRanges returns the acquiry-error ranges recorded for this image,
// whether freshly appended during acquisition or parsed back from the
// info file.
func (h *Handle) ErrorRanges() []ErrorRange { return h.errorRanges }

func formatErrorRanges(ranges []ErrorRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = fmt.Sprintf("%d:%d", r.StartSector, r.SectorCount)
	}
	return strings.Join(parts, ",")
}

func parseErrorRanges(s string) ([]ErrorRange, error) {
	if s == "" {
		return nil, nil
	}
	var ranges []ErrorRange
	for _, part := range strings.Split(s, ",") {
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, ewferr.New(ewferr.Conversion, "rawimage.parseErrorRanges: malformed entry")
		}
		start, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, ewferr.Wrap(ewferr.Conversion, "rawimage.parseErrorRanges", err)
		}
		count, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, ewferr.Wrap(ewferr.Conversion, "rawimage.parseErrorRanges", err)
		}
		ranges = append(ranges, ErrorRange{StartSector: start, SectorCount: count})
	}
	return ranges, nil
}

// Read forwards to the underlying SegmentTable.
func (h *Handle) Read(buf []byte) (int, error) {
	if h.table == nil {
		return 0, ewferr.New(ewferr.Missing, "rawimage.Read: not open")
	}
	return h.table.Read(buf)
}

// Write forwards to the underlying SegmentTable, lazily initializing
// write state (expected total segment count) on the first call.
func (h *Handle) Write(buf []byte) (int, error) {
	if h.table == nil {
		return 0, ewferr.New(ewferr.Missing, "rawimage.Write: not open")
	}
	if !h.writeInitialized {
		h.initWrite()
	}
	return h.table.Write(buf)
}

func (h *Handle) initWrite() {
	h.writeInitialized = true
	maxSeg := h.table.MaxSegmentSize()
	if maxSeg == 0 || h.mediaSize == 0 {
		h.totalSegmentsTarget = 1
		return
	}
	target := (h.mediaSize + maxSeg - 1) / maxSeg
	if target < 1 {
		target = 1
	}
	h.totalSegmentsTarget = int32(target)
}

// Seek forwards to the underlying SegmentTable.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if h.table == nil {
		return 0, ewferr.New(ewferr.Missing, "rawimage.Seek: not open")
	}
	return h.table.Seek(offset, whence)
}

// Close flushes a scheduled info-file write (if armed), then drains the
// segment table and closes the pool.
func (h *Handle) Close() error {
	if h.writeInfoOnClose {
		if err := h.writeInfoFile(); err != nil {
			return err
		}
	}
	if h.pool != nil {
		return h.pool.CloseAll()
	}
	return nil
}

func (h *Handle) writeInfoFile() error {
	_ = h.mediaValues.SetUint64("media_size", h.mediaSize)
	f, err := infofile.Open(h.infoPath, infofile.ModeWrite)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.WriteSection("media_values", h.mediaValues); err != nil {
		return err
	}
	if err := f.WriteSection("information_values", h.informationValues); err != nil {
		return err
	}
	if err := f.WriteSection("integrity_hash_values", h.integrityHashValues); err != nil {
		return err
	}
	return nil
}

// GetFilenameAtCurrentOffset returns the path of the segment file
// backing the current logical offset.
func (h *Handle) GetFilenameAtCurrentOffset() (string, error) {
	if h.table == nil {
		return "", ewferr.New(ewferr.Missing, "rawimage.GetFilenameAtCurrentOffset: not open")
	}
	idx := h.table.CursorSegmentIndex()
	if idx < 0 {
		return "", ewferr.New(ewferr.Missing, "rawimage.GetFilenameAtCurrentOffset: no segments")
	}
	seg, err := h.table.Segment(idx)
	if err != nil {
		return "", err
	}
	return h.pool.Name(seg.PoolEntry)
}

// MaximumSegmentSize / SetMaximumSegmentSize wrap the SegmentTable cap.
func (h *Handle) MaximumSegmentSize() uint64 { return h.table.MaxSegmentSize() }

func (h *Handle) SetMaximumSegmentSize(n uint64) error {
	return h.table.SetMaxSegmentSize(n)
}

// MaximumNumberOfOpenHandles / SetMaximumNumberOfOpenHandles wrap the
// pool's LRU cap.
func (h *Handle) MaximumNumberOfOpenHandles() int { return h.pool.MaxOpen() }

func (h *Handle) SetMaximumNumberOfOpenHandles(n int) { h.pool.SetMaxOpen(n) }

func (h *Handle) opened() bool { return h.readInitialized || h.writeInitialized }

// MediaSize / SetMediaSize. SetMediaSize fails once the handle has
// started reading or writing.
func (h *Handle) MediaSize() uint64 { return h.mediaSize }

func (h *Handle) SetMediaSize(n uint64) error {
	if h.opened() {
		return ewferr.New(ewferr.ImmutableAfterOpen, "rawimage.SetMediaSize")
	}
	h.mediaSize = n
	return nil
}

// BytesPerSector / SetBytesPerSector.
func (h *Handle) BytesPerSector() (uint32, error) {
	v, ok := h.mediaValues.Get("bytes_per_sector")
	if !ok {
		return 0, nil
	}
	n, err := v.Uint64Value()
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func (h *Handle) SetBytesPerSector(n uint32) error {
	if h.opened() {
		return ewferr.New(ewferr.ImmutableAfterOpen, "rawimage.SetBytesPerSector")
	}
	return h.mediaValues.SetUint64("bytes_per_sector", uint64(n))
}

// MediaType / SetMediaType.
func (h *Handle) MediaType() MediaType {
	v, ok := h.mediaValues.Get("media_type")
	if !ok {
		return MediaTypeUnknown
	}
	return MediaType(v.StringValue())
}

func (h *Handle) SetMediaType(t MediaType) error {
	if h.opened() {
		return ewferr.New(ewferr.ImmutableAfterOpen, "rawimage.SetMediaType")
	}
	return h.mediaValues.SetString("media_type", string(t))
}

// MediaFlags / SetMediaFlags.
func (h *Handle) MediaFlags() MediaFlags {
	v, ok := h.mediaValues.Get("media_flags")
	if !ok {
		return ""
	}
	return MediaFlags(v.StringValue())
}

func (h *Handle) SetMediaFlags(f MediaFlags) error {
	if h.opened() {
		return ewferr.New(ewferr.ImmutableAfterOpen, "rawimage.SetMediaFlags")
	}
	return h.mediaValues.SetString("media_flags", string(f))
}

// InformationValues / IntegrityHashValues expose the sidecar's
// information and integrity-hash key/value tables for reading and
// (pre-read) writing.
func (h *Handle) InformationValues() *infofile.ValueTable   { return h.informationValues }
func (h *Handle) IntegrityHashValues() *infofile.ValueTable { return h.integrityHashValues }

// SetInformationValue sets a UTF-8 information_values entry. Fails once
// the handle has read values from disk, so values loaded from a prior
// acquisition are never silently overwritten.
func (h *Handle) SetInformationValue(id, value string) error {
	if h.readInitialized {
		return ewferr.New(ewferr.ImmutableAfterRead, "rawimage.SetInformationValue")
	}
	return h.informationValues.SetString(id, value)
}

// SetHashValue sets an integrity_hash_values entry (e.g. "MD5"). This is
// how the acquisition/export engine records finalized digests.
func (h *Handle) SetHashValue(id, value string) error {
	if h.readInitialized {
		return ewferr.New(ewferr.ImmutableAfterRead, "rawimage.SetHashValue")
	}
	return h.integrityHashValues.SetString(id, value)
}

// ParseBytesPerSector is a small helper used by CLI front-ends to
// validate a user-supplied sector size string.
func ParseBytesPerSector(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, ewferr.Wrap(ewferr.Conversion, "rawimage.ParseBytesPerSector", err)
	}
	if n == 0 {
		return 0, ewferr.New(ewferr.ArgumentInvalid, "rawimage.ParseBytesPerSector: must be > 0")
	}
	return uint32(n), nil
}
