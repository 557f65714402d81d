package digest

import (
	"crypto/md5"
	"encoding/hex"
	"testing"
)

func TestFinalizeOnlyRequestedDigests(t *testing.T) {
	s := NewSet(Options{MD5: true})
	s.Update([]byte("hello"))
	r := s.Finalize()

	want := md5.Sum([]byte("hello"))
	if r.MD5 != hex.EncodeToString(want[:]) {
		t.Fatalf("MD5 = %s, want %s", r.MD5, hex.EncodeToString(want[:]))
	}
	if r.SHA1 != "" || r.SHA256 != "" {
		t.Fatalf("unrequested digests should be empty: %+v", r)
	}
}

func TestUpdateAcrossChunks(t *testing.T) {
	whole := NewSet(Options{MD5: true})
	whole.Update([]byte("hello world"))

	chunked := NewSet(Options{MD5: true})
	chunked.Update([]byte("hello "))
	chunked.Update([]byte("world"))

	if whole.Finalize().MD5 != chunked.Finalize().MD5 {
		t.Fatalf("chunked update diverges from single update")
	}
}
