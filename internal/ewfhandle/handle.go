package ewfhandle

import (
	"bytes"
	"os"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
	"github.com/sleuthkit/goewfacquire/internal/ltree"
)

// Handle is a single-segment EWF-style container, implementing
// engine.Capability for both acquisition (write) and export (read).
// Unlike a full multi-file E01/E02/... reader, this adapter keeps to
// one segment file; splitting a logical volume across multiple EWF
// segments is left to a future naming-schema layer and is out of scope
// here.
//
// Sections are written and read back sequentially by their descriptor's
// Size field rather than by chaining NextOffset pointers: this adapter
// is the sole writer and reader of its own files, so a simple
// self-describing walk replaces libewf's doubly-linked section chain.
type Handle struct {
	f    *os.File
	path string

	volume      volumeInfo
	caseInfo    CaseInfo
	compression CompressionLevel
	chunkSize   int

	// write-side state
	writing        bool
	sectorsBuf     *bytes.Buffer
	entries        []uint32
	chunkIndex     int
	lastCompressed bool
	hashValues     map[string]string
	aborted        bool
	acquiryErrors  []ErrorRange
	pendingTree    *ltree.Entry

	// read-side state
	reading       bool
	sectorsOffset int64
	sectorsLen    int64
	readEntries   []uint32
	digestValues  map[string]string
	errorRanges   []ErrorRange
	logicalTree   *ltree.Entry
}

// Create opens path for acquisition, writing the leading file header,
// header2, and volume sections immediately; sector data is buffered and
// flushed by WriteFinalize.
func Create(path string, caseInfo CaseInfo, mt MediaType, sectorCount uint64, bytesPerSector uint32, chunkSectors uint32, comp CompressionLevel) (*Handle, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, ewferr.Wrap(ewferr.IO, "ewfhandle.Create", err)
	}
	h := &Handle{
		f:           f,
		path:        path,
		caseInfo:    caseInfo,
		compression: comp,
		writing:     true,
		sectorsBuf:  &bytes.Buffer{},
		hashValues:  make(map[string]string),
	}
	h.volume = newVolumeInfo(mt, sectorCount, bytesPerSector, chunkSectors, comp)
	h.chunkSize = h.volume.chunkSize()

	fh := fileHeader{Signature: evfSignature, FieldsStart: 1, SegmentNumber: 1}
	if _, err := f.Write(fh.marshal()); err != nil {
		return nil, ewferr.Wrap(ewferr.IO, "ewfhandle.Create", err)
	}
	body, err := encodeHeader2(caseInfo)
	if err != nil {
		return nil, err
	}
	if _, err := writeSection(f, sectionTypeHeader2, body); err != nil {
		return nil, err
	}
	if _, err := writeSection(f, sectionTypeVolume, h.volume.marshal()); err != nil {
		return nil, err
	}
	return h, nil
}

// Open opens an existing single-segment file for export, parsing every
// section up to (not including) "done".
func Open(path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ewferr.Wrap(ewferr.IO, "ewfhandle.Open", err)
	}
	h := &Handle{f: f, path: path, reading: true, digestValues: make(map[string]string)}

	hdrBuf := make([]byte, 13)
	if _, err := f.Read(hdrBuf); err != nil {
		return nil, ewferr.Wrap(ewferr.IO, "ewfhandle.Open: file header", err)
	}
	fh, err := unmarshalFileHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	if fh.Signature != evfSignature {
		return nil, ewferr.New(ewferr.ArgumentInvalid, "ewfhandle.Open: bad signature")
	}

	var offset int64 = 13
	for {
		descBuf := make([]byte, sectionDescriptorSize)
		if _, err := f.ReadAt(descBuf, offset); err != nil {
			return nil, ewferr.Wrap(ewferr.IO, "ewfhandle.Open: section descriptor", err)
		}
		sd, err := unmarshalSectionDescriptor(descBuf)
		if err != nil {
			return nil, err
		}
		bodyOffset := offset + sectionDescriptorSize
		bodyLen := int64(sd.Size) - sectionDescriptorSize
		typ := sd.typeString()

		if typ == sectionTypeDone || typ == "" {
			break
		}

		body := make([]byte, bodyLen)
		if bodyLen > 0 {
			if _, err := f.ReadAt(body, bodyOffset); err != nil {
				return nil, ewferr.Wrap(ewferr.IO, "ewfhandle.Open: section body", err)
			}
		}

		switch typ {
		case sectionTypeHeader2:
			info, err := decodeHeader2(body)
			if err != nil {
				return nil, err
			}
			h.caseInfo = info
		case sectionTypeVolume, sectionTypeDisk:
			v, err := unmarshalVolumeInfo(body)
			if err != nil {
				return nil, err
			}
			h.volume = v
			h.compression = v.Compression
			h.chunkSize = v.chunkSize()
		case sectionTypeSectors:
			h.sectorsOffset = bodyOffset
			h.sectorsLen = bodyLen
		case sectionTypeTable:
			_, entries, err := unmarshalTable(body)
			if err != nil {
				return nil, err
			}
			h.readEntries = entries
		case sectionTypeDigest, sectionTypeHash:
			parseDigestBody(body, h.digestValues)
		case sectionTypeError2:
			ranges, err := unmarshalErrorTable(body)
			if err != nil {
				return nil, err
			}
			h.errorRanges = ranges
		case sectionTypeLTree:
			tree, err := ltree.Unmarshal(body)
			if err != nil {
				return nil, err
			}
			h.logicalTree = tree
		}

		offset = bodyOffset + bodyLen
	}
	return h, nil
}

func parseDigestBody(body []byte, out map[string]string) {
	for _, line := range bytes.Split(body, []byte{'\n'}) {
		parts := bytes.SplitN(line, []byte{'='}, 2)
		if len(parts) == 2 {
			out[string(parts[0])] = string(parts[1])
		}
	}
}

// PrepareRead records which chunk ReadChunk should serve next.
func (h *Handle) PrepareRead(chunkIndex int) error {
	if !h.reading {
		return ewferr.New(ewferr.InvalidMode, "ewfhandle.PrepareRead")
	}
	if chunkIndex < 0 || chunkIndex >= len(h.readEntries) {
		return ewferr.New(ewferr.ArgumentInvalid, "ewfhandle.PrepareRead: out of range")
	}
	h.chunkIndex = chunkIndex
	return nil
}

// ReadChunk reads and (if flagged) decompresses the prepared chunk.
func (h *Handle) ReadChunk(buf []byte) (int, error) {
	idx := h.chunkIndex
	entry := h.readEntries[idx]
	start := int64(entryOffset(entry))
	var end int64
	if idx+1 < len(h.readEntries) {
		end = int64(entryOffset(h.readEntries[idx+1]))
	} else {
		end = h.sectorsLen
	}
	length := end - start

	rawSize := h.chunkSize
	if idx == int(h.volume.ChunkCount)-1 {
		total := int(h.volume.SectorCount) * int(h.volume.BytesPerSector)
		if rem := total % h.chunkSize; rem != 0 {
			rawSize = rem
		}
	}

	raw := make([]byte, length)
	if _, err := h.f.ReadAt(raw, h.sectorsOffset+start); err != nil {
		return 0, ewferr.Wrap(ewferr.IO, "ewfhandle.ReadChunk", err)
	}
	if isCompressedEntry(entry) {
		decompressed, err := decompressChunk(raw, rawSize)
		if err != nil {
			return 0, err
		}
		raw = decompressed
	}
	n := copy(buf, raw)
	return n, nil
}

// PrepareWrite optionally zlib-compresses data, keeping the compressed
// form only when it is actually smaller.
func (h *Handle) PrepareWrite(chunkIndex int, data []byte) ([]byte, error) {
	if h.compression == CompressionNone {
		h.lastCompressed = false
		return data, nil
	}
	compressed, err := compressChunk(data)
	if err != nil {
		return nil, err
	}
	if len(compressed) < len(data) {
		h.lastCompressed = true
		return compressed, nil
	}
	h.lastCompressed = false
	return data, nil
}

// WriteChunk appends prepared bytes to the in-memory sectors buffer and
// records a table entry for it.
func (h *Handle) WriteChunk(prepared []byte) (int, error) {
	if !h.writing {
		return 0, ewferr.New(ewferr.InvalidMode, "ewfhandle.WriteChunk")
	}
	if h.aborted {
		return 0, ewferr.New(ewferr.Aborted, "ewfhandle.WriteChunk")
	}
	offset := uint32(h.sectorsBuf.Len())
	if h.lastCompressed {
		offset = markCompressed(offset)
	}
	h.entries = append(h.entries, offset)
	n, err := h.sectorsBuf.Write(prepared)
	if err != nil {
		return n, ewferr.Wrap(ewferr.IO, "ewfhandle.WriteChunk", err)
	}
	h.chunkIndex++
	return n, nil
}

// Seek only supports chunk-aligned repositioning; ReadChunk/WriteChunk
// operate at chunk granularity, so an intra-chunk byte offset has no
// meaning at this layer.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if whence != 0 {
		return 0, ewferr.New(ewferr.ArgumentInvalid, "ewfhandle.Seek: only SeekStart supported")
	}
	if h.chunkSize == 0 || offset%int64(h.chunkSize) != 0 {
		return 0, ewferr.New(ewferr.ArgumentInvalid, "ewfhandle.Seek: not chunk-aligned")
	}
	idx := int(offset / int64(h.chunkSize))
	h.chunkIndex = idx
	return offset, nil
}

func (h *Handle) SignalAbort() { h.aborted = true }

func (h *Handle) SetHashValue(id, value string) error {
	if h.hashValues == nil {
		h.hashValues = make(map[string]string)
	}
	h.hashValues[id] = value
	return nil
}

// WriteFinalize flushes the sectors/table/table2/digest/hash/done
// sections once every chunk has been written.
func (h *Handle) WriteFinalize() error {
	if !h.writing {
		return nil
	}
	sectorsBodyOffset, err := h.f.Seek(0, 1)
	if err != nil {
		return ewferr.Wrap(ewferr.IO, "ewfhandle.WriteFinalize", err)
	}
	if _, err := writeSection(h.f, sectionTypeSectors, h.sectorsBuf.Bytes()); err != nil {
		return err
	}
	tableBody := marshalTable(uint64(sectorsBodyOffset), h.entries)
	if _, err := writeSection(h.f, sectionTypeTable, tableBody); err != nil {
		return err
	}
	if _, err := writeSection(h.f, sectionTypeTable2, tableBody); err != nil {
		return err
	}

	var digestBuf bytes.Buffer
	for id, value := range h.hashValues {
		digestBuf.WriteString(id)
		digestBuf.WriteByte('=')
		digestBuf.WriteString(value)
		digestBuf.WriteByte('\n')
	}
	if _, err := writeSection(h.f, sectionTypeDigest, digestBuf.Bytes()); err != nil {
		return err
	}
	if _, err := writeSection(h.f, sectionTypeHash, digestBuf.Bytes()); err != nil {
		return err
	}
	if len(h.acquiryErrors) > 0 {
		if _, err := writeSection(h.f, sectionTypeError2, marshalErrorTable(h.acquiryErrors)); err != nil {
			return err
		}
	}
	if h.pendingTree != nil {
		if _, err := writeSection(h.f, sectionTypeLTree, ltree.Marshal(h.pendingTree)); err != nil {
			return err
		}
	}
	if _, err := writeSection(h.f, sectionTypeDone, nil); err != nil {
		return err
	}
	return nil
}

// AppendReadError records an unreadable sector range for persistence in
// the error2 section written by WriteFinalize.
func (h *Handle) AppendReadError(startSector, sectorCount uint64) error {
	if !h.writing {
		return ewferr.New(ewferr.InvalidMode, "ewfhandle.AppendReadError")
	}
	h.acquiryErrors = append(h.acquiryErrors, ErrorRange{StartSector: startSector, SectorCount: sectorCount})
	return nil
}

// ErrorRanges returns the acquiry-error ranges recorded against this
// container, either freshly appended (write mode) or parsed back from
// its error2 section (read mode).
func (h *Handle) ErrorRanges() []ErrorRange {
	if h.writing {
		return h.acquiryErrors
	}
	return h.errorRanges
}

// SetLogicalTree arms a logical-evidence-file manifest for inclusion in
// WriteFinalize's output, used when this container holds a concatenated
// stream of individually named files rather than one physical volume.
func (h *Handle) SetLogicalTree(root *ltree.Entry) {
	h.pendingTree = root
}

// LogicalTree returns the logical-evidence-file manifest parsed from
// this container's ltree section, or nil if it holds a physical volume.
func (h *Handle) LogicalTree() *ltree.Entry {
	return h.logicalTree
}

// ReadRange returns the size bytes starting at offset within this
// container's chunked payload, spanning as many chunks as needed. It is
// how ExportLogicalEvidence recovers one file entry's bytes from the
// underlying chunk-addressed sectors section.
func (h *Handle) ReadRange(offset, size uint64) ([]byte, error) {
	if h.chunkSize == 0 {
		return nil, ewferr.New(ewferr.InvalidMode, "ewfhandle.ReadRange")
	}
	out := make([]byte, 0, size)
	chunkBuf := make([]byte, h.chunkSize)
	for uint64(len(out)) < size {
		pos := offset + uint64(len(out))
		idx := int(pos / uint64(h.chunkSize))
		if err := h.PrepareRead(idx); err != nil {
			return nil, err
		}
		n, err := h.ReadChunk(chunkBuf)
		if err != nil {
			return nil, err
		}
		within := pos % uint64(h.chunkSize)
		if within >= uint64(n) {
			break
		}
		take := uint64(n) - within
		if remaining := size - uint64(len(out)); take > remaining {
			take = remaining
		}
		out = append(out, chunkBuf[within:within+take]...)
	}
	return out, nil
}

func (h *Handle) Close() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	if err != nil {
		return ewferr.Wrap(ewferr.IO, "ewfhandle.Close", err)
	}
	return nil
}

// CaseInfo returns the parsed provenance metadata (read mode).
func (h *Handle) CaseInfo() CaseInfo { return h.caseInfo }

// SectorCount, BytesPerSector, ChunkCount expose read-mode geometry.
func (h *Handle) SectorCount() uint64     { return h.volume.SectorCount }
func (h *Handle) BytesPerSector() uint32  { return h.volume.BytesPerSector }
func (h *Handle) ChunkCount() int         { return int(h.volume.ChunkCount) }
func (h *Handle) DigestValue(id string) (string, bool) {
	v, ok := h.digestValues[id]
	return v, ok
}
