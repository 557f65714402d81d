package infofile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSectionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.raw.info")

	in := NewValueTable()
	if err := in.SetUint64("media_size", 1048576); err != nil {
		t.Fatalf("SetUint64: %v", err)
	}
	if err := in.SetString("media_type", "fixed"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := in.SetString("notes", "acquired under case 42"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	wf, err := Open(path, ModeWrite)
	if err != nil {
		t.Fatalf("Open write: %v", err)
	}
	if err := wf.WriteSection("media_values", in); err != nil {
		t.Fatalf("WriteSection: %v", err)
	}
	if err := wf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rf, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open read: %v", err)
	}
	defer rf.Close()

	out := NewValueTable()
	found, err := rf.ReadSection("media_values", out)
	if err != nil {
		t.Fatalf("ReadSection: %v", err)
	}
	if !found {
		t.Fatalf("section not found")
	}
	if !in.Equal(out) {
		t.Fatalf("round-trip mismatch: in=%+v out=%+v", in, out)
	}
}

func TestMissingSectionNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.raw.info")
	wf, _ := Open(path, ModeWrite)
	wf.Close()

	rf, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rf.Close()
	out := NewValueTable()
	found, err := rf.ReadSection("integrity_hash_values", out)
	if err != nil {
		t.Fatalf("ReadSection: %v", err)
	}
	if found {
		t.Fatalf("expected section not found")
	}
}

func TestMalformedLineIsSkippedNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "malformed.raw.info")
	content := "<media_values>\n\tnot a value line\n\t<media_size>1024</media_size>\n</media_values>\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rf, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rf.Close()
	out := NewValueTable()
	found, err := rf.ReadSection("media_values", out)
	if err != nil {
		t.Fatalf("ReadSection: %v", err)
	}
	if !found {
		t.Fatalf("expected section found")
	}
	if out.Count() != 1 {
		t.Fatalf("Count = %d, want 1 (malformed line skipped)", out.Count())
	}
	v, ok := out.Get("media_size")
	if !ok || v.StringValue() != "1024" {
		t.Fatalf("media_size = %v, ok=%v", v, ok)
	}
}

func TestThreeSectionFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "three.raw.info")
	wf, _ := Open(path, ModeWrite)
	media := NewValueTable()
	media.SetUint64("media_size", 10)
	info := NewValueTable()
	info.SetString("examiner_name", "J. Doe")
	hashes := NewValueTable()
	hashes.SetString("MD5", "d41d8cd98f00b204e9800998ecf8427e")

	if err := wf.WriteSection("media_values", media); err != nil {
		t.Fatal(err)
	}
	if err := wf.WriteSection("information_values", info); err != nil {
		t.Fatal(err)
	}
	if err := wf.WriteSection("integrity_hash_values", hashes); err != nil {
		t.Fatal(err)
	}
	wf.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(raw)
	for _, want := range []string{"<media_values>", "</media_values>", "<information_values>", "</information_values>", "<integrity_hash_values>", "</integrity_hash_values>"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}
