package ewfhandle

import (
	"encoding/binary"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

// ErrorRange is one recorded unreadable sector span, persisted in the
// error2 section.
type ErrorRange struct {
	StartSector uint64
	SectorCount uint64
}

// marshalErrorTable renders an error2 section body: entry count, each
// entry as a (start_sector, number_of_sectors) uint32 pair, and a
// trailing checksum, mirroring table section's own layout.
func marshalErrorTable(ranges []ErrorRange) []byte {
	buf := make([]byte, 4+len(ranges)*8+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ranges)))
	off := 4
	for _, r := range ranges {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(r.StartSector))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(r.SectorCount))
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], checksum32(buf[:off]))
	return buf
}

func unmarshalErrorTable(buf []byte) ([]ErrorRange, error) {
	if len(buf) < 4 {
		return nil, ewferr.New(ewferr.UnexpectedEOF, "ewfhandle.unmarshalErrorTable")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	ranges := make([]ErrorRange, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+8 > len(buf) {
			return nil, ewferr.New(ewferr.UnexpectedEOF, "ewfhandle.unmarshalErrorTable: truncated entries")
		}
		start := binary.LittleEndian.Uint32(buf[off : off+4])
		cnt := binary.LittleEndian.Uint32(buf[off+4 : off+8])
		ranges = append(ranges, ErrorRange{StartSector: uint64(start), SectorCount: uint64(cnt)})
		off += 8
	}
	return ranges, nil
}
