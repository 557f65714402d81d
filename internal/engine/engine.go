package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sleuthkit/goewfacquire/internal/digest"
	"github.com/sleuthkit/goewfacquire/internal/ewferr"
	"github.com/sleuthkit/goewfacquire/internal/ltree"
	"github.com/sleuthkit/goewfacquire/internal/mediabuffer"
)

// AcquisitionEngine drives the read -> prepare -> swap -> hash -> write
// loop from a physical/logical source into a Capability. It assumes the
// source and destination share one chunk size; a differing output chunk
// size would need an accumulator re-buffering reads before each write,
// which this engine does not implement.
type AcquisitionEngine struct {
	source         io.Reader
	dest           Capability
	chunkSize      int
	mediaSize      uint64
	bytesPerSector uint32
	swapBytePairs  bool
	digestOpts     digest.Options
	opts           AcquisitionOptions
	notify         io.Writer
	aborted        bool
}

// NewAcquisitionEngine constructs an engine over an already-opened
// source and destination. notify may be nil, in which case progress
// lines are discarded. bytesPerSector scales read-error sector-range
// accounting; a zero value is treated as 1 (byte-granular accounting),
// which is the right default for a logical (file-concatenation) source.
func NewAcquisitionEngine(source io.Reader, dest Capability, chunkSize int, mediaSize uint64, bytesPerSector uint32, swapBytePairs bool, opts digest.Options, aopts AcquisitionOptions, notify io.Writer) *AcquisitionEngine {
	if notify == nil {
		notify = io.Discard
	}
	if bytesPerSector == 0 {
		bytesPerSector = 1
	}
	return &AcquisitionEngine{
		source: source, dest: dest, chunkSize: chunkSize, mediaSize: mediaSize,
		bytesPerSector: bytesPerSector, swapBytePairs: swapBytePairs,
		digestOpts: opts, opts: aopts, notify: notify,
	}
}

// SignalAbort requests the acquisition stop after the in-flight chunk.
func (e *AcquisitionEngine) SignalAbort() {
	e.aborted = true
	e.dest.SignalAbort()
	if e.opts.Secondary != nil {
		e.opts.Secondary.SignalAbort()
	}
}

// Run executes the full acquisition and returns the finalized digest
// over every media byte read (post-swap, pre-compression).
func (e *AcquisitionEngine) Run() (digest.Results, error) {
	set := digest.NewSet(e.digestOpts)
	mb := mediabuffer.New(e.chunkSize)
	totalChunks := int((e.mediaSize + uint64(e.chunkSize) - 1) / uint64(e.chunkSize))

	bytesRemaining := e.mediaSize
	chunkIndex := 0

	if e.opts.ResumeOffset > 0 {
		if e.opts.ResumeOffset > e.mediaSize {
			return set.Finalize(), ewferr.New(ewferr.ArgumentInvalid, "engine.AcquisitionEngine.Run: resume offset past media size")
		}
		if err := skipSourceBytes(e.source, e.opts.ResumeOffset); err != nil {
			return set.Finalize(), ewferr.Wrap(ewferr.IO, "engine.AcquisitionEngine.Run: resume", err)
		}
		if _, err := e.dest.Seek(int64(e.opts.ResumeOffset), io.SeekStart); err != nil {
			return set.Finalize(), err
		}
		if e.opts.Secondary != nil {
			if _, err := e.opts.Secondary.Seek(int64(e.opts.ResumeOffset), io.SeekStart); err != nil {
				return set.Finalize(), err
			}
		}
		bytesRemaining -= e.opts.ResumeOffset
		chunkIndex = int(e.opts.ResumeOffset / uint64(e.chunkSize))
		fmt.Fprintf(e.notify, "resuming at byte %d (chunk %d/%d)\n", e.opts.ResumeOffset, chunkIndex, totalChunks)
	}

	for ; bytesRemaining > 0; chunkIndex++ {
		if e.aborted {
			return set.Finalize(), ewferr.New(ewferr.Aborted, "engine.AcquisitionEngine.Run")
		}

		want := uint64(e.chunkSize)
		if want > bytesRemaining {
			want = bytesRemaining
		}
		currentOffset := e.mediaSize - bytesRemaining
		mb.Reset()
		n, err := io.ReadFull(e.source, mb.RawBuffer[:int(want)])
		if err == io.EOF {
			return set.Finalize(), ewferr.New(ewferr.UnexpectedEOF, "engine.AcquisitionEngine.Run: source exhausted before acquire_size")
		}
		if err != nil {
			startSector := currentOffset / uint64(e.bytesPerSector)
			endSector := ceilDiv(currentOffset+want, uint64(e.bytesPerSector))
			fmt.Fprintf(e.notify, "read error at chunk %d: %v (zero-filling)\n", chunkIndex, err)
			if appendErr := e.dest.AppendReadError(startSector, endSector-startSector); appendErr != nil {
				return set.Finalize(), appendErr
			}
			for i := n; i < int(want); i++ {
				mb.RawBuffer[i] = 0
			}
			n = int(want)
		}
		mb.RawDataLen = n

		if e.swapBytePairs {
			if err := mb.SwapBytePairs(n); err != nil {
				return set.Finalize(), err
			}
		}

		data, _ := mb.GetData()
		set.Update(data)

		prepared, err := e.dest.PrepareWrite(chunkIndex, data)
		if err != nil {
			return set.Finalize(), err
		}
		if _, err := e.dest.WriteChunk(prepared); err != nil {
			return set.Finalize(), err
		}
		if e.opts.Secondary != nil {
			if _, err := e.opts.Secondary.WriteChunk(prepared); err != nil {
				return set.Finalize(), err
			}
		}

		bytesRemaining -= uint64(n)
		fmt.Fprintf(e.notify, "acquired chunk %d/%d\n", chunkIndex+1, totalChunks)
	}

	results := set.Finalize()
	if err := recordDigest(e.dest, e.digestOpts, results); err != nil {
		return results, err
	}
	if e.opts.Secondary != nil {
		if err := recordDigest(e.opts.Secondary, e.digestOpts, results); err != nil {
			return results, err
		}
	}
	if err := e.dest.WriteFinalize(); err != nil {
		return results, err
	}
	if e.opts.Secondary != nil {
		if err := e.opts.Secondary.WriteFinalize(); err != nil {
			return results, err
		}
	}
	if err := e.dest.Close(); err != nil {
		return results, err
	}
	if e.opts.Secondary != nil {
		return results, e.opts.Secondary.Close()
	}
	return results, nil
}

// skipSourceBytes advances source past n already-acquired bytes, seeking
// directly when possible and discarding via a copy otherwise.
func skipSourceBytes(source io.Reader, n uint64) error {
	if seeker, ok := source.(io.Seeker); ok {
		_, err := seeker.Seek(int64(n), io.SeekCurrent)
		return err
	}
	_, err := io.CopyN(io.Discard, source, int64(n))
	return err
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func recordDigest(dest Capability, opts digest.Options, r digest.Results) error {
	if opts.MD5 {
		if err := dest.SetHashValue("MD5", r.MD5); err != nil {
			return err
		}
	}
	if opts.SHA1 {
		if err := dest.SetHashValue("SHA1", r.SHA1); err != nil {
			return err
		}
	}
	if opts.SHA256 {
		if err := dest.SetHashValue("SHA256", r.SHA256); err != nil {
			return err
		}
	}
	return nil
}

// ExportEngine drives the inverse pipeline: reading
// every chunk back out of a Capability and writing it to a plain
// io.Writer destination, recomputing the integrity digest as it goes.
type ExportEngine struct {
	source      Capability
	dest        io.Writer
	chunkSize   int
	totalChunks int
	digestOpts  digest.Options
	notify      io.Writer
	aborted     bool
}

// NewExportEngine constructs an export driver. totalChunks must match
// the source's chunk count (ewfhandle.Handle.ChunkCount or the raw
// image's byte length divided by chunkSize, rounded up).
func NewExportEngine(source Capability, dest io.Writer, chunkSize, totalChunks int, opts digest.Options, notify io.Writer) *ExportEngine {
	if notify == nil {
		notify = io.Discard
	}
	return &ExportEngine{source: source, dest: dest, chunkSize: chunkSize, totalChunks: totalChunks, digestOpts: opts, notify: notify}
}

func (e *ExportEngine) SignalAbort() {
	e.aborted = true
	e.source.SignalAbort()
}

// Run streams every chunk from source to dest, returning the freshly
// computed digest for comparison against a recorded integrity value.
func (e *ExportEngine) Run() (digest.Results, error) {
	set := digest.NewSet(e.digestOpts)
	buf := make([]byte, e.chunkSize)

	for i := 0; i < e.totalChunks; i++ {
		if e.aborted {
			return set.Finalize(), ewferr.New(ewferr.Aborted, "engine.ExportEngine.Run")
		}
		if err := e.source.PrepareRead(i); err != nil {
			return set.Finalize(), err
		}
		n, err := e.source.ReadChunk(buf)
		if err != nil {
			return set.Finalize(), err
		}
		set.Update(buf[:n])
		if _, err := e.dest.Write(buf[:n]); err != nil {
			return set.Finalize(), ewferr.Wrap(ewferr.IO, "engine.ExportEngine.Run", err)
		}
		fmt.Fprintf(e.notify, "exported chunk %d/%d\n", i+1, e.totalChunks)
	}
	return set.Finalize(), e.source.Close()
}

// VerifyDigest reports which recorded hash identifiers disagree with
// freshly computed results.
func VerifyDigest(recorded map[string]string, fresh digest.Results) []string {
	var mismatches []string
	check := func(id, want, got string) {
		if want == "" {
			return
		}
		if want != got {
			mismatches = append(mismatches, id)
		}
	}
	check("MD5", recorded["MD5"], fresh.MD5)
	check("SHA1", recorded["SHA1"], fresh.SHA1)
	check("SHA256", recorded["SHA256"], fresh.SHA256)
	return mismatches
}

// ExportLogicalEvidence walks source's logical-evidence-file tree and
// copies every file entry into destDir, preserving relative paths: a
// per-entry export mode alongside the physical byte-stream path.
func ExportLogicalEvidence(source LogicalSource, destDir string, notify io.Writer) error {
	if notify == nil {
		notify = io.Discard
	}
	root := source.LogicalTree()
	if root == nil {
		return ewferr.New(ewferr.Missing, "engine.ExportLogicalEvidence: source has no logical-evidence tree")
	}
	return ltree.Walk(root, func(path string, e *ltree.Entry) error {
		target := filepath.Join(destDir, filepath.FromSlash(path))
		if e.IsDir {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		data, err := source.ReadRange(e.Offset, e.Size)
		if err != nil {
			return ewferr.Wrap(ewferr.IO, "engine.ExportLogicalEvidence: "+path, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return ewferr.Wrap(ewferr.IO, "engine.ExportLogicalEvidence: "+path, err)
		}
		fmt.Fprintf(notify, "exported %s (%d bytes)\n", path, len(data))
		return nil
	})
}
