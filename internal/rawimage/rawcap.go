package rawimage

import "github.com/sleuthkit/goewfacquire/internal/ewferr"

// Capability adapts a Handle to engine.Capability. Raw split images have
// no per-chunk structure beyond the flat byte stream SegmentTable
// already provides, so PrepareRead/PrepareWrite are near no-ops and
// there is no finalize-time trailer beyond the info-file write Close
// already performs.
type Capability struct {
	h         *Handle
	chunkSize int
	aborted   bool
}

// NewCapability wraps an opened Handle for use as an engine.Capability,
// chunking the flat byte stream into chunkSize-byte windows.
func NewCapability(h *Handle, chunkSize int) *Capability {
	return &Capability{h: h, chunkSize: chunkSize}
}

func (c *Capability) PrepareRead(chunkIndex int) error {
	_, err := c.h.Seek(int64(chunkIndex)*int64(c.chunkSize), 0)
	return err
}

func (c *Capability) ReadChunk(buf []byte) (int, error) {
	if c.aborted {
		return 0, ewferr.New(ewferr.Aborted, "rawimage.Capability.ReadChunk")
	}
	return c.h.Read(buf)
}

func (c *Capability) PrepareWrite(chunkIndex int, data []byte) ([]byte, error) {
	return data, nil
}

func (c *Capability) WriteChunk(prepared []byte) (int, error) {
	if c.aborted {
		return 0, ewferr.New(ewferr.Aborted, "rawimage.Capability.WriteChunk")
	}
	return c.h.Write(prepared)
}

func (c *Capability) Seek(offset int64, whence int) (int64, error) {
	return c.h.Seek(offset, whence)
}

func (c *Capability) Close() error { return c.h.Close() }

func (c *Capability) SignalAbort() { c.aborted = true }

func (c *Capability) WriteFinalize() error { return nil }

func (c *Capability) SetHashValue(id, value string) error {
	return c.h.SetHashValue(id, value)
}

// AppendReadError zero-fills are the caller's responsibility (the engine
// writes zero bytes itself); this records the sector range in the
// underlying image's information_values so the error can be reported
// back on export/verification.
func (c *Capability) AppendReadError(startSector, sectorCount uint64) error {
	return c.h.AppendReadError(startSector, sectorCount)
}
