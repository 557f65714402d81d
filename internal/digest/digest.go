// Package digest wraps the stdlib MD5/SHA-1/SHA-256 streaming digesters
// uniformly. Digest implementations are treated
// as opaque external collaborators; crypto/md5, crypto/sha1
// and crypto/sha256 are the grounded choice since no repo in the example
// corpus reaches for a third-party digest library for this purpose.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Set creates exactly the digesters the caller requested and feeds them
// the same byte stream via Update.
type Set struct {
	md5    hash.Hash
	sha1   hash.Hash
	sha256 hash.Hash
}

// Options selects which digests to compute.
type Options struct {
	MD5    bool
	SHA1   bool
	SHA256 bool
}

// NewSet creates a Set with the requested digesters initialized.
func NewSet(opts Options) *Set {
	s := &Set{}
	if opts.MD5 {
		s.md5 = md5.New()
	}
	if opts.SHA1 {
		s.sha1 = sha1.New()
	}
	if opts.SHA256 {
		s.sha256 = sha256.New()
	}
	return s
}

// Update feeds p to every active digester. It never fails: hash.Hash's
// Write contract guarantees no error.
func (s *Set) Update(p []byte) {
	if s.md5 != nil {
		s.md5.Write(p)
	}
	if s.sha1 != nil {
		s.sha1.Write(p)
	}
	if s.sha256 != nil {
		s.sha256.Write(p)
	}
}

// Results is the finalized digest set, lowercase-hex encoded for
// persistence in an info-file integrity_hash_values section.
type Results struct {
	MD5    string
	SHA1   string
	SHA256 string
}

// Finalize renders every active digester's sum as lowercase hex. Inactive
// digesters leave their field empty.
func (s *Set) Finalize() Results {
	var r Results
	if s.md5 != nil {
		r.MD5 = hex.EncodeToString(s.md5.Sum(nil))
	}
	if s.sha1 != nil {
		r.SHA1 = hex.EncodeToString(s.sha1.Sum(nil))
	}
	if s.sha256 != nil {
		r.SHA256 = hex.EncodeToString(s.sha256.Sum(nil))
	}
	return r
}
