package ewfhandle

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"
	"io"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

// fileHeader is ewf.go's EWFFileHeader: the 13-byte prefix of every
// segment file.
type fileHeader struct {
	Signature     [8]byte
	FieldsStart   uint8
	SegmentNumber uint16
	FieldsEnd     uint16
}

func (h fileHeader) marshal() []byte {
	buf := make([]byte, 13)
	copy(buf[0:8], h.Signature[:])
	buf[8] = h.FieldsStart
	binary.LittleEndian.PutUint16(buf[9:11], h.SegmentNumber)
	binary.LittleEndian.PutUint16(buf[11:13], h.FieldsEnd)
	return buf
}

func unmarshalFileHeader(buf []byte) (fileHeader, error) {
	if len(buf) < 13 {
		return fileHeader{}, ewferr.New(ewferr.UnexpectedEOF, "ewfhandle.unmarshalFileHeader")
	}
	var h fileHeader
	copy(h.Signature[:], buf[0:8])
	h.FieldsStart = buf[8]
	h.SegmentNumber = binary.LittleEndian.Uint16(buf[9:11])
	h.FieldsEnd = binary.LittleEndian.Uint16(buf[11:13])
	return h, nil
}

// sectionDescriptor is ewf.go's Section: the fixed 76-byte header that
// precedes every section body.
type sectionDescriptor struct {
	TypeDefinition [16]byte
	NextOffset     uint64
	Size           uint64
	Padding        [40]byte
	CheckSum       uint32
}

const sectionDescriptorSize = 76

func newSectionDescriptor(typ string, bodySize uint64) sectionDescriptor {
	var sd sectionDescriptor
	copy(sd.TypeDefinition[:], typ)
	sd.Size = sectionDescriptorSize + bodySize
	return sd
}

func (sd sectionDescriptor) marshal() []byte {
	buf := make([]byte, sectionDescriptorSize)
	copy(buf[0:16], sd.TypeDefinition[:])
	binary.LittleEndian.PutUint64(buf[16:24], sd.NextOffset)
	binary.LittleEndian.PutUint64(buf[24:32], sd.Size)
	binary.LittleEndian.PutUint32(buf[72:76], adler32.Checksum(buf[0:72]))
	return buf
}

func unmarshalSectionDescriptor(buf []byte) (sectionDescriptor, error) {
	if len(buf) < sectionDescriptorSize {
		return sectionDescriptor{}, ewferr.New(ewferr.UnexpectedEOF, "ewfhandle.unmarshalSectionDescriptor")
	}
	var sd sectionDescriptor
	copy(sd.TypeDefinition[:], buf[0:16])
	sd.NextOffset = binary.LittleEndian.Uint64(buf[16:24])
	sd.Size = binary.LittleEndian.Uint64(buf[24:32])
	sd.CheckSum = binary.LittleEndian.Uint32(buf[72:76])
	return sd, nil
}

func (sd sectionDescriptor) typeString() string {
	return string(bytes.TrimRight(sd.TypeDefinition[:], "\x00"))
}

// writeSection appends descriptor+body to w, returning the section's
// total on-disk length.
func writeSection(w io.Writer, typ string, body []byte) (uint64, error) {
	sd := newSectionDescriptor(typ, uint64(len(body)))
	if _, err := w.Write(sd.marshal()); err != nil {
		return 0, ewferr.Wrap(ewferr.IO, "ewfhandle.writeSection", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return 0, ewferr.Wrap(ewferr.IO, "ewfhandle.writeSection", err)
		}
	}
	return sd.Size, nil
}
