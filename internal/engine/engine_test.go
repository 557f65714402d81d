package engine

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sleuthkit/goewfacquire/internal/digest"
	"github.com/sleuthkit/goewfacquire/internal/ewferr"
	"github.com/sleuthkit/goewfacquire/internal/ltree"
	"github.com/sleuthkit/goewfacquire/internal/rawimage"
)

// fakeCapability is an in-memory Capability stand-in for exercising the
// acquisition loop's error-masking, secondary-mirroring, and resume paths
// without going through a real image format.
type fakeCapability struct {
	chunks       [][]byte
	hashes       map[string]string
	appendErrors []struct{ start, count uint64 }
	seekOffset   int64
	finalized    bool
	closed       bool
	aborted      bool
}

func newFakeCapability() *fakeCapability {
	return &fakeCapability{hashes: make(map[string]string)}
}

func (f *fakeCapability) PrepareRead(int) error { return nil }
func (f *fakeCapability) ReadChunk([]byte) (int, error) {
	return 0, errors.New("fakeCapability: not a read source")
}
func (f *fakeCapability) PrepareWrite(chunkIndex int, data []byte) ([]byte, error) {
	return data, nil
}
func (f *fakeCapability) WriteChunk(prepared []byte) (int, error) {
	cp := append([]byte(nil), prepared...)
	f.chunks = append(f.chunks, cp)
	return len(prepared), nil
}
func (f *fakeCapability) Seek(offset int64, whence int) (int64, error) {
	f.seekOffset = offset
	return offset, nil
}
func (f *fakeCapability) Close() error { f.closed = true; return nil }
func (f *fakeCapability) SignalAbort() { f.aborted = true }
func (f *fakeCapability) WriteFinalize() error {
	f.finalized = true
	return nil
}
func (f *fakeCapability) SetHashValue(id, value string) error {
	f.hashes[id] = value
	return nil
}
func (f *fakeCapability) AppendReadError(startSector, sectorCount uint64) error {
	f.appendErrors = append(f.appendErrors, struct{ start, count uint64 }{startSector, sectorCount})
	return nil
}

func (f *fakeCapability) data() []byte {
	var out []byte
	for _, c := range f.chunks {
		out = append(out, c...)
	}
	return out
}

// flakyReader fails once, part-way through its nth chunk, with a
// non-EOF error, then reads cleanly for the rest of the stream.
type flakyReader struct {
	data      []byte
	pos       int
	failAt    int
	failed    bool
	shortBy   int
}

func (r *flakyReader) Read(p []byte) (int, error) {
	if !r.failed && r.pos >= r.failAt {
		r.failed = true
		n := len(p) - r.shortBy
		if n < 0 {
			n = 0
		}
		copy(p[:n], r.data[r.pos:r.pos+n])
		r.pos += n
		return n, errors.New("simulated read failure")
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func TestVerifyDigestDetectsMismatch(t *testing.T) {
	recorded := map[string]string{"MD5": "abc", "SHA1": "def"}
	fresh := digest.Results{MD5: "abc", SHA1: "WRONG"}
	mismatches := VerifyDigest(recorded, fresh)
	if len(mismatches) != 1 || mismatches[0] != "SHA1" {
		t.Fatalf("mismatches = %v, want [SHA1]", mismatches)
	}
}

func TestVerifyDigestIgnoresUnrecordedAlgorithms(t *testing.T) {
	recorded := map[string]string{"MD5": "abc"}
	fresh := digest.Results{MD5: "abc", SHA256: "whatever"}
	mismatches := VerifyDigest(recorded, fresh)
	if len(mismatches) != 0 {
		t.Fatalf("mismatches = %v, want none", mismatches)
	}
}

func TestAcquisitionAndExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")

	source := bytes.NewReader(bytes.Repeat([]byte{0x42}, 100_000))
	mediaSize := uint64(source.Len())

	w := rawimage.New()
	if err := w.SetMediaSize(mediaSize); err != nil {
		t.Fatalf("SetMediaSize: %v", err)
	}
	if err := w.Open([]string{base}, rawimage.AccessWrite); err != nil {
		t.Fatalf("Open (write): %v", err)
	}
	const chunkSize = 16 * 1024
	dest := rawimage.NewCapability(w, chunkSize)

	acq := NewAcquisitionEngine(source, dest, chunkSize, mediaSize, 512, false, digest.Options{MD5: true}, AcquisitionOptions{}, nil)
	acquireResults, err := acq.Run()
	if err != nil {
		t.Fatalf("AcquisitionEngine.Run: %v", err)
	}
	if acquireResults.MD5 == "" {
		t.Fatalf("expected a non-empty MD5")
	}

	r := rawimage.New()
	if err := r.Open([]string{base + ".raw"}, rawimage.AccessRead); err != nil {
		t.Fatalf("Open (read): %v", err)
	}
	totalChunks := int((r.MediaSize() + chunkSize - 1) / chunkSize)
	src := rawimage.NewCapability(r, chunkSize)

	var out bytes.Buffer
	exp := NewExportEngine(src, &out, chunkSize, totalChunks, digest.Options{MD5: true}, nil)
	exportResults, err := exp.Run()
	if err != nil {
		t.Fatalf("ExportEngine.Run: %v", err)
	}

	if out.Len() != int(mediaSize) {
		t.Fatalf("exported %d bytes, want %d", out.Len(), mediaSize)
	}
	if exportResults.MD5 != acquireResults.MD5 {
		t.Fatalf("export MD5 = %s, want %s", exportResults.MD5, acquireResults.MD5)
	}

	recorded := map[string]string{}
	for i := 0; i < r.IntegrityHashValues().Count(); i++ {
		id, _ := r.IntegrityHashValues().IdentifierAt(i)
		v, _ := r.IntegrityHashValues().Get(id)
		recorded[id] = v.StringValue()
	}
	if mismatches := VerifyDigest(recorded, exportResults); len(mismatches) != 0 {
		t.Fatalf("unexpected mismatches: %v", mismatches)
	}
}

func TestRunRecordsSectorAccurateReadError(t *testing.T) {
	const chunkSize = 512
	const bytesPerSector = 512
	mediaSize := uint64(chunkSize * 4)

	source := &flakyReader{data: bytes.Repeat([]byte{0x7a}, int(mediaSize)), failAt: chunkSize * 2, shortBy: 100}
	dest := newFakeCapability()

	eng := NewAcquisitionEngine(source, dest, chunkSize, mediaSize, bytesPerSector, false, digest.Options{MD5: true}, AcquisitionOptions{}, nil)
	if _, err := eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(dest.appendErrors) != 1 {
		t.Fatalf("appendErrors = %v, want exactly one entry", dest.appendErrors)
	}
	wantStart := uint64(chunkSize*2) / bytesPerSector
	wantEnd := ceilDiv(uint64(chunkSize*3), bytesPerSector)
	got := dest.appendErrors[0]
	if got.start != wantStart || got.count != wantEnd-wantStart {
		t.Fatalf("appendError = {start:%d count:%d}, want {start:%d count:%d}", got.start, got.count, wantStart, wantEnd-wantStart)
	}
	if len(dest.data()) != int(mediaSize) {
		t.Fatalf("acquired %d bytes, want %d (short chunk should be zero-filled, not dropped)", len(dest.data()), mediaSize)
	}
}

func TestRunFailsFastOnShortSource(t *testing.T) {
	const chunkSize = 512
	mediaSize := uint64(chunkSize * 4)
	// Source only has enough data for two chunks, then a clean io.EOF.
	source := bytes.NewReader(bytes.Repeat([]byte{0x11}, chunkSize*2))
	dest := newFakeCapability()

	eng := NewAcquisitionEngine(source, dest, chunkSize, mediaSize, 512, false, digest.Options{}, AcquisitionOptions{}, nil)
	_, err := eng.Run()
	if err == nil {
		t.Fatalf("Run succeeded, want UnexpectedEOF")
	}
	if !errors.Is(err, ewferr.UnexpectedEOF) {
		t.Fatalf("Run err = %v, want ewferr.UnexpectedEOF", err)
	}
}

func TestRunMirrorsToSecondary(t *testing.T) {
	const chunkSize = 512
	mediaSize := uint64(chunkSize * 3)
	source := bytes.NewReader(bytes.Repeat([]byte{0x55}, int(mediaSize)))
	primary := newFakeCapability()
	secondary := newFakeCapability()

	eng := NewAcquisitionEngine(source, primary, chunkSize, mediaSize, 512, false, digest.Options{MD5: true},
		AcquisitionOptions{Secondary: secondary}, nil)
	results, err := eng.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !bytes.Equal(primary.data(), secondary.data()) {
		t.Fatalf("secondary data diverged from primary")
	}
	if !secondary.finalized || !secondary.closed {
		t.Fatalf("secondary not finalized/closed: finalized=%v closed=%v", secondary.finalized, secondary.closed)
	}
	if secondary.hashes["MD5"] != results.MD5 {
		t.Fatalf("secondary MD5 = %q, want %q", secondary.hashes["MD5"], results.MD5)
	}
}

func TestRunResumesFromOffset(t *testing.T) {
	const chunkSize = 512
	mediaSize := uint64(chunkSize * 4)
	full := bytes.Repeat([]byte{0x99}, int(mediaSize))
	resumeOffset := uint64(chunkSize * 2)

	source := bytes.NewReader(full)
	dest := newFakeCapability()

	eng := NewAcquisitionEngine(source, dest, chunkSize, mediaSize, 512, false, digest.Options{},
		AcquisitionOptions{ResumeOffset: resumeOffset}, nil)
	if _, err := eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if dest.seekOffset != int64(resumeOffset) {
		t.Fatalf("dest seek offset = %d, want %d", dest.seekOffset, resumeOffset)
	}
	if len(dest.data()) != int(mediaSize-resumeOffset) {
		t.Fatalf("wrote %d bytes after resume, want %d", len(dest.data()), mediaSize-resumeOffset)
	}
	if !bytes.Equal(dest.data(), full[resumeOffset:]) {
		t.Fatalf("resumed data does not match source tail")
	}
}

func TestRunRejectsResumeOffsetPastMediaSize(t *testing.T) {
	const chunkSize = 512
	mediaSize := uint64(chunkSize * 2)
	source := bytes.NewReader(bytes.Repeat([]byte{0x01}, int(mediaSize)))
	dest := newFakeCapability()

	eng := NewAcquisitionEngine(source, dest, chunkSize, mediaSize, 512, false, digest.Options{},
		AcquisitionOptions{ResumeOffset: mediaSize + 1}, nil)
	if _, err := eng.Run(); !errors.Is(err, ewferr.ArgumentInvalid) {
		t.Fatalf("Run err = %v, want ewferr.ArgumentInvalid", err)
	}
}

func TestExportLogicalEvidenceWritesFiles(t *testing.T) {
	dir := t.TempDir()
	root := &ltree.Entry{
		IsDir: true,
		Children: []*ltree.Entry{
			{Name: "a.txt", Offset: 0, Size: 5},
			{Name: "sub", IsDir: true, Children: []*ltree.Entry{
				{Name: "b.txt", Offset: 5, Size: 3},
			}},
		},
	}
	payload := []byte("helloxyz")
	src := &fakeLogicalSource{tree: root, payload: payload}

	if err := ExportLogicalEvidence(src, dir, nil); err != nil {
		t.Fatalf("ExportLogicalEvidence: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("a.txt = %q, %v, want %q", got, err, "hello")
	}
	got, err = os.ReadFile(filepath.Join(dir, "sub", "b.txt"))
	if err != nil || string(got) != "xyz" {
		t.Fatalf("sub/b.txt = %q, %v, want %q", got, err, "xyz")
	}
}

type fakeLogicalSource struct {
	tree    *ltree.Entry
	payload []byte
}

func (f *fakeLogicalSource) LogicalTree() *ltree.Entry { return f.tree }
func (f *fakeLogicalSource) ReadRange(offset, size uint64) ([]byte, error) {
	return f.payload[offset : offset+size], nil
}

var _ io.Reader = (*flakyReader)(nil)
