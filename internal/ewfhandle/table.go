package ewfhandle

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

// compressChunk zlib-compresses one chunk's raw media bytes, the
// EWF-specific transform; the core engine/segment/mediabuffer packages
// never compress, so this stays local to the format.
func compressChunk(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, ewferr.Wrap(ewferr.IO, "ewfhandle.compressChunk", err)
	}
	if err := w.Close(); err != nil {
		return nil, ewferr.Wrap(ewferr.IO, "ewfhandle.compressChunk", err)
	}
	return buf.Bytes(), nil
}

func decompressChunk(data []byte, rawSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ewferr.Wrap(ewferr.Conversion, "ewfhandle.decompressChunk", err)
	}
	defer r.Close()
	out := make([]byte, rawSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, ewferr.Wrap(ewferr.Conversion, "ewfhandle.decompressChunk", err)
	}
	return out[:n], nil
}

// marshalTable renders a table section body: entry count, a base-offset
// field, the entries themselves (each optionally compressedEntryMask-
// flagged per the EWF compressed-entry convention), and a trailing
// checksum.
func marshalTable(baseOffset uint64, entries []uint32) []byte {
	buf := make([]byte, 4+8+len(entries)*4+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(entries)))
	binary.LittleEndian.PutUint64(buf[4:12], baseOffset)
	off := 12
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:off+4], e)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], checksum32(buf[:off]))
	return buf
}

func unmarshalTable(buf []byte) (baseOffset uint64, entries []uint32, err error) {
	if len(buf) < 12 {
		return 0, nil, ewferr.New(ewferr.UnexpectedEOF, "ewfhandle.unmarshalTable")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	baseOffset = binary.LittleEndian.Uint64(buf[4:12])
	off := 12
	entries = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(buf) {
			return 0, nil, ewferr.New(ewferr.UnexpectedEOF, "ewfhandle.unmarshalTable: truncated entries")
		}
		entries = append(entries, binary.LittleEndian.Uint32(buf[off:off+4]))
		off += 4
	}
	return baseOffset, entries, nil
}

func isCompressedEntry(e uint32) bool { return e&compressedEntryMask != 0 }
func entryOffset(e uint32) uint32     { return e & entryOffsetMask }
func markCompressed(offset uint32) uint32 {
	return offset | compressedEntryMask
}
