// Package engine implements AcquisitionEngine and ExportEngine
// the chunk-oriented read/prepare/swap/hash/write
// pipelines that drive a source through to a destination image format.
// Both engines are written against the Capability interface so the same
// driver loop works whether the destination (acquisition) or source
// (export) is a raw split image or an EWF container.
package engine

import "github.com/sleuthkit/goewfacquire/internal/ltree"

// Capability is the polymorphic storage-format collaborator:
// AcquisitionEngine writes through it, ExportEngine reads
// through it. A concrete implementation (internal/rawimage's adapter,
// internal/ewfhandle) owns the on-disk layout; the engine only ever
// calls these methods.
type Capability interface {
	// PrepareRead seeds any per-chunk state needed before ReadChunk can
	// serve chunkIndex (e.g. locating its table entry).
	PrepareRead(chunkIndex int) error

	// ReadChunk reads one (decompressed) chunk into buf, returning the
	// number of valid media bytes. Bytes come back as stored: a byte-pair
	// swap applied during acquisition is not undone.
	ReadChunk(buf []byte) (int, error)

	// PrepareWrite is given the raw media bytes for one chunk and
	// returns the bytes that should actually be persisted (e.g.
	// zlib-compressed for EWF, unchanged for raw).
	PrepareWrite(chunkIndex int, data []byte) ([]byte, error)

	// WriteChunk persists the (already-prepared) bytes for one chunk.
	WriteChunk(prepared []byte) (int, error)

	// Seek repositions the underlying media cursor. whence follows
	// io.Seek* semantics.
	Seek(offset int64, whence int) (int64, error)

	// Close finalizes and releases all resources.
	Close() error

	// SignalAbort requests the capability stop as soon as safely
	// possible; WriteFinalize/Close must still be able to run afterward.
	SignalAbort()

	// WriteFinalize emits any trailing structures (hash/digest
	// sections, done markers) once all chunks have been written.
	WriteFinalize() error

	// SetHashValue records one finalized digest (e.g. "MD5") for
	// inclusion in WriteFinalize's output.
	SetHashValue(id, value string) error

	// AppendReadError records an unreadable source region spanning
	// sectorCount sectors starting at startSector, so export/acquisition
	// can continue past it with the region zero-filled.
	AppendReadError(startSector, sectorCount uint64) error
}

// SessionAppender is implemented by capabilities that support recording
// logical session boundaries (optical-media acquisition).
type SessionAppender interface {
	AppendSession(startSector, sectorCount uint64) error
}

// TrackAppender is implemented by capabilities that support recording
// logical track boundaries (optical-media acquisition).
type TrackAppender interface {
	AppendTrack(startSector, sectorCount uint64, trackType string) error
}

// LogicalSource is implemented by a Capability that can also expose a
// logical-evidence-file tree: a manifest of named entries addressing
// byte ranges of the same chunked payload ReadChunk serves, rather than
// one physical volume. ExportLogicalEvidence walks it.
type LogicalSource interface {
	LogicalTree() *ltree.Entry
	ReadRange(offset, size uint64) ([]byte, error)
}

// AcquisitionOptions bundles the acquisition-loop features that sit
// outside the core read/prepare/swap/hash/write cycle.
type AcquisitionOptions struct {
	// Secondary, when non-nil, receives a mirrored copy of every
	// WriteChunk, Seek, SignalAbort, WriteFinalize, and SetHashValue
	// call made against the primary destination. A failure on either
	// side aborts the job.
	Secondary Capability

	// ResumeOffset is the number of media bytes already present in the
	// destination from a prior interrupted run (as reported by that
	// destination's own resume-open path). Run skips that many bytes of
	// source and begins accounting and writing from there. Zero means a
	// fresh acquisition.
	ResumeOffset uint64
}
