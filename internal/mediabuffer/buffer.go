// Package mediabuffer implements StorageMediaBuffer: the chunk-sized
// transfer buffer that may hold raw or compressed payload.
// It is a scratch region reused across chunk iterations
// by the acquisition/export engine.
package mediabuffer

import "github.com/sleuthkit/goewfacquire/internal/ewferr"

// Buffer is a chunk-sized scratch region holding either raw or
// compressed data. Exactly one of RawBuffer/CompressionBuffer holds the
// currently-valid payload, indicated by DataInCompressionBuffer.
type Buffer struct {
	RawBuffer         []byte
	CompressionBuffer []byte

	IsCompressed            bool
	DataInCompressionBuffer bool
	Checksum                uint32
	ProcessChecksum         bool

	RawDataLen        int
	CompressedDataLen int
}

// New allocates a buffer sized for chunkSize raw bytes and a
// compression scratch area slightly larger than that (chunkSize plus
// chunkSize/1000 plus 64 bytes), leaving a margin for incompressible
// chunks.
func New(chunkSize int) *Buffer {
	return &Buffer{
		RawBuffer:         make([]byte, chunkSize),
		CompressionBuffer: make([]byte, chunkSize+chunkSize/1000+64),
	}
}

// GetData returns a view of whichever region currently holds valid
// payload, and its length.
func (b *Buffer) GetData() ([]byte, int) {
	if b.DataInCompressionBuffer {
		return b.CompressionBuffer[:b.CompressedDataLen], b.CompressedDataLen
	}
	return b.RawBuffer[:b.RawDataLen], b.RawDataLen
}

// SwapBytePairs swaps every adjacent byte pair in the first len bytes of
// whichever region currently holds valid payload, used to normalize
// SCSI/IDE big-endian reads to little-endian on disk. len must be even.
func (b *Buffer) SwapBytePairs(length int) error {
	if length%2 != 0 {
		return ewferr.New(ewferr.ArgumentInvalid, "mediabuffer.SwapBytePairs: odd length")
	}
	data, dataLen := b.GetData()
	if length > dataLen {
		return ewferr.New(ewferr.ArgumentInvalid, "mediabuffer.SwapBytePairs: length exceeds data")
	}
	for i := 0; i+1 < length; i += 2 {
		data[i], data[i+1] = data[i+1], data[i]
	}
	return nil
}

// Reset clears the buffer's bookkeeping fields (not the backing arrays)
// so it can be reused for the next chunk.
func (b *Buffer) Reset() {
	b.IsCompressed = false
	b.DataInCompressionBuffer = false
	b.Checksum = 0
	b.ProcessChecksum = false
	b.RawDataLen = 0
	b.CompressedDataLen = 0
}
