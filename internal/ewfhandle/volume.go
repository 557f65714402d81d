package ewfhandle

import (
	"encoding/binary"
	"hash/adler32"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
	"github.com/sleuthkit/goewfacquire/internal/guidgen"
)

// volumeInfo is the fixed-size body of a "volume"/"disk" section,
// trimmed from ewf.go's DiskSMART down to the fields this writer
// actually populates: media geometry plus the segment-file-set GUID.
type volumeInfo struct {
	MediaType             MediaType
	ChunkCount            uint32
	ChunkSectors          uint32
	BytesPerSector        uint32
	SectorCount           uint64
	SegmentFileSetID      [16]byte
	Compression           CompressionLevel
}

const volumeInfoSize = 1 + 4 + 4 + 4 + 8 + 16 + 1

func newVolumeInfo(mt MediaType, sectorCount uint64, bytesPerSector uint32, chunkSectors uint32, comp CompressionLevel) volumeInfo {
	chunkSize := uint64(chunkSectors) * uint64(bytesPerSector)
	chunkCount := uint32(0)
	if chunkSize > 0 {
		chunkCount = uint32((sectorCount*uint64(bytesPerSector) + chunkSize - 1) / chunkSize)
	}
	return volumeInfo{
		MediaType:        mt,
		ChunkCount:       chunkCount,
		ChunkSectors:     chunkSectors,
		BytesPerSector:   bytesPerSector,
		SectorCount:      sectorCount,
		SegmentFileSetID: guidgen.New(),
		Compression:      comp,
	}
}

func (v volumeInfo) marshal() []byte {
	buf := make([]byte, volumeInfoSize)
	buf[0] = byte(v.MediaType)
	binary.LittleEndian.PutUint32(buf[1:5], v.ChunkCount)
	binary.LittleEndian.PutUint32(buf[5:9], v.ChunkSectors)
	binary.LittleEndian.PutUint32(buf[9:13], v.BytesPerSector)
	binary.LittleEndian.PutUint64(buf[13:21], v.SectorCount)
	copy(buf[21:37], v.SegmentFileSetID[:])
	buf[37] = byte(v.Compression)
	return buf
}

func unmarshalVolumeInfo(buf []byte) (volumeInfo, error) {
	if len(buf) < volumeInfoSize {
		return volumeInfo{}, ewferr.New(ewferr.UnexpectedEOF, "ewfhandle.unmarshalVolumeInfo")
	}
	var v volumeInfo
	v.MediaType = MediaType(buf[0])
	v.ChunkCount = binary.LittleEndian.Uint32(buf[1:5])
	v.ChunkSectors = binary.LittleEndian.Uint32(buf[5:9])
	v.BytesPerSector = binary.LittleEndian.Uint32(buf[9:13])
	v.SectorCount = binary.LittleEndian.Uint64(buf[13:21])
	copy(v.SegmentFileSetID[:], buf[21:37])
	v.Compression = CompressionLevel(buf[37])
	return v, nil
}

func (v volumeInfo) chunkSize() int {
	return int(v.ChunkSectors) * int(v.BytesPerSector)
}

// checksum32 is the trailing checksum of the table and error2 section
// bodies; chunks themselves carry no checksum.
func checksum32(b []byte) uint32 {
	return adler32.Checksum(b)
}
