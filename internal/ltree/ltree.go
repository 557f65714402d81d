// Package ltree implements the logical-evidence-file tree: the manifest
// of named file/folder entries an EWF-style container can carry
// alongside (or instead of) a flat physical byte stream, so ExportEngine
// can walk it and recreate individual files rather than copying the
// image byte-for-byte.
//
// An Entry's Offset/Size address a byte range of the container's own
// chunked payload, the same stream ewfhandle.Handle already reads via
// PrepareRead/ReadChunk; the tree itself carries no bytes.
package ltree

import (
	"encoding/binary"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

// Entry is one node in a logical-evidence tree. Directories have
// Children and no data range; files have Offset/Size and no Children.
type Entry struct {
	Name     string
	IsDir    bool
	Offset   uint64
	Size     uint64
	Children []*Entry
}

// Walk invokes fn for every entry under root (root itself excluded),
// depth-first, passing the slash-joined relative path built from each
// ancestor's Name.
func Walk(root *Entry, fn func(path string, e *Entry) error) error {
	return walk(root, "", fn)
}

func walk(node *Entry, prefix string, fn func(string, *Entry) error) error {
	for _, child := range node.Children {
		path := child.Name
		if prefix != "" {
			path = prefix + "/" + child.Name
		}
		if err := fn(path, child); err != nil {
			return err
		}
		if child.IsDir {
			if err := walk(child, path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Marshal renders root (and every descendant) as a flat pre-order
// record stream: one record per entry, each carrying its child count
// and followed directly by that many child records.
func Marshal(root *Entry) []byte {
	var buf []byte
	buf = appendEntry(buf, root)
	return buf
}

func appendEntry(buf []byte, e *Entry) []byte {
	buf = appendString(buf, e.Name)
	var flags byte
	if e.IsDir {
		flags = 1
	}
	buf = append(buf, flags)
	buf = appendUint64(buf, e.Offset)
	buf = appendUint64(buf, e.Size)
	buf = appendUint32(buf, uint32(len(e.Children)))
	for _, c := range e.Children {
		buf = appendEntry(buf, c)
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Unmarshal parses the record stream Marshal produced, returning the
// root entry.
func Unmarshal(buf []byte) (*Entry, error) {
	e, rest, err := readEntry(buf)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ewferr.New(ewferr.Conversion, "ltree.Unmarshal: trailing bytes")
	}
	return e, nil
}

func readEntry(buf []byte) (*Entry, []byte, error) {
	name, buf, err := readString(buf)
	if err != nil {
		return nil, nil, err
	}
	if len(buf) < 1+8+8+4 {
		return nil, nil, ewferr.New(ewferr.UnexpectedEOF, "ltree.readEntry: truncated header")
	}
	e := &Entry{Name: name, IsDir: buf[0] != 0}
	buf = buf[1:]
	e.Offset = binary.LittleEndian.Uint64(buf[0:8])
	e.Size = binary.LittleEndian.Uint64(buf[8:16])
	childCount := binary.LittleEndian.Uint32(buf[16:20])
	buf = buf[20:]
	for i := uint32(0); i < childCount; i++ {
		var child *Entry
		child, buf, err = readEntry(buf)
		if err != nil {
			return nil, nil, err
		}
		e.Children = append(e.Children, child)
	}
	return e, buf, nil
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, ewferr.New(ewferr.UnexpectedEOF, "ltree.readString: truncated length")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return "", nil, ewferr.New(ewferr.UnexpectedEOF, "ltree.readString: truncated data")
	}
	return string(buf[:n]), buf[n:], nil
}
