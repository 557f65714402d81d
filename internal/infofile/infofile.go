// Package infofile implements InformationFile: the plain-text sidecar
// that persists media, provenance, and integrity values alongside a
// split-raw image. The on-disk grammar is grounded on
// libsmraw_information_file.c's libsmraw_information_file_write_section
// (section start "<id>\n", one "\t<key>value</key>\n" line per value,
// section end "</id>\n\n").
package infofile

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

// ValueType narrows ValueTable entries to the two encodings this format
// allows.
type ValueType int

const (
	TypeString ValueType = iota
	TypeUint64
)

// Value is one (identifier, value) pair in a ValueTable.
type Value struct {
	Identifier string
	raw        string
	Type       ValueType
}

// StringValue returns the value as UTF-8 text.
func (v Value) StringValue() string { return v.raw }

// Uint64Value parses the value as decimal ASCII.
func (v Value) Uint64Value() (uint64, error) {
	n, err := strconv.ParseUint(v.raw, 10, 64)
	if err != nil {
		return 0, ewferr.Wrap(ewferr.Conversion, "infofile.Value.Uint64Value", err)
	}
	return n, nil
}

// identifierPattern restricts identifiers to [A-Za-z0-9_]+.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValueTable is an ordered collection of identifier/value pairs.
type ValueTable struct {
	values []Value
	index  map[string]int
}

// NewValueTable creates an empty table.
func NewValueTable() *ValueTable {
	return &ValueTable{index: make(map[string]int)}
}

// Count returns the number of values.
func (t *ValueTable) Count() int { return len(t.values) }

// IdentifierAt returns the identifier at position i.
func (t *ValueTable) IdentifierAt(i int) (string, error) {
	if i < 0 || i >= len(t.values) {
		return "", ewferr.New(ewferr.ArgumentInvalid, "infofile.IdentifierAt")
	}
	return t.values[i].Identifier, nil
}

// Get returns the value for id, if present.
func (t *ValueTable) Get(id string) (Value, bool) {
	i, ok := t.index[id]
	if !ok {
		return Value{}, false
	}
	return t.values[i], true
}

// SetString sets (or replaces) a UTF-8 string value. id must match
// [A-Za-z0-9_]+ and value must not contain '<'.
func (t *ValueTable) SetString(id, value string) error {
	return t.set(id, value, TypeString)
}

// SetUint64 sets (or replaces) an unsigned-integer value, rendered as
// decimal ASCII.
func (t *ValueTable) SetUint64(id string, value uint64) error {
	return t.set(id, strconv.FormatUint(value, 10), TypeUint64)
}

func (t *ValueTable) set(id, raw string, typ ValueType) error {
	if !identifierPattern.MatchString(id) {
		return ewferr.New(ewferr.ArgumentInvalid, "infofile.set: bad identifier")
	}
	if strings.ContainsRune(raw, '<') {
		return ewferr.New(ewferr.ArgumentInvalid, "infofile.set: value contains '<'")
	}
	if i, ok := t.index[id]; ok {
		t.values[i] = Value{Identifier: id, raw: raw, Type: typ}
		return nil
	}
	t.index[id] = len(t.values)
	t.values = append(t.values, Value{Identifier: id, raw: raw, Type: typ})
	return nil
}

// Equal reports whether two tables hold the same identifiers and values
// (order-independent), used by the info-file round-trip property.
func (t *ValueTable) Equal(o *ValueTable) bool {
	if t.Count() != o.Count() {
		return false
	}
	for _, v := range t.values {
		ov, ok := o.Get(v.Identifier)
		if !ok || ov.raw != v.raw {
			return false
		}
	}
	return true
}

// File is a sidecar InformationFile opened in read or write mode.
type File struct {
	path string
	mode Mode
	f    *os.File
}

type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Open opens path for mode. Write mode truncates.
func Open(path string, mode Mode) (*File, error) {
	var f *os.File
	var err error
	switch mode {
	case ModeRead:
		f, err = os.Open(path)
	case ModeWrite:
		f, err = os.Create(path)
	default:
		return nil, ewferr.New(ewferr.ArgumentInvalid, "infofile.Open: bad mode")
	}
	if err != nil {
		return nil, ewferr.Wrap(ewferr.IO, "infofile.Open", err)
	}
	return &File{path: path, mode: mode, f: f}, nil
}

// Close releases the underlying file handle.
func (inf *File) Close() error {
	if inf.f == nil {
		return nil
	}
	err := inf.f.Close()
	inf.f = nil
	if err != nil {
		return ewferr.Wrap(ewferr.IO, "infofile.Close", err)
	}
	return nil
}

var valueLinePattern = regexp.MustCompile(`^<([A-Za-z0-9_]+)>([^<]*)</[A-Za-z0-9_]+>$`)

// ReadSection rewinds the file, scans it, and populates out with every
// value line found between "<id>" and "</id>". Returns true if the
// section was found. A value line that doesn't match the permitted
// grammar is skipped without erroring.
func (inf *File) ReadSection(id string, out *ValueTable) (bool, error) {
	if inf.mode != ModeRead {
		return false, ewferr.New(ewferr.InvalidMode, "infofile.ReadSection")
	}
	if _, err := inf.f.Seek(0, 0); err != nil {
		return false, ewferr.Wrap(ewferr.IO, "infofile.ReadSection", err)
	}
	scanner := bufio.NewScanner(inf.f)
	open := fmt.Sprintf("<%s>", id)
	closeTag := fmt.Sprintf("</%s>", id)

	inSection := false
	found := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !inSection {
			if line == open {
				inSection = true
				found = true
			}
			continue
		}
		if line == closeTag {
			break
		}
		m := valueLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		_ = out.SetString(m[1], m[2])
	}
	if err := scanner.Err(); err != nil {
		return found, ewferr.Wrap(ewferr.IO, "infofile.ReadSection", err)
	}
	return found, nil
}

// WriteSection appends a section in the canonical grammar: "<id>\n" then
// one "\t<key>value</key>\n" per value then "</id>\n\n".
func (inf *File) WriteSection(id string, in *ValueTable) error {
	if inf.mode != ModeWrite {
		return ewferr.New(ewferr.InvalidMode, "infofile.WriteSection")
	}
	w := bufio.NewWriter(inf.f)
	if _, err := fmt.Fprintf(w, "<%s>\n", id); err != nil {
		return ewferr.Wrap(ewferr.IO, "infofile.WriteSection", err)
	}
	for i := 0; i < in.Count(); i++ {
		id, err := in.IdentifierAt(i)
		if err != nil {
			return err
		}
		v, _ := in.Get(id)
		if _, err := fmt.Fprintf(w, "\t<%s>%s</%s>\n", v.Identifier, v.raw, v.Identifier); err != nil {
			return ewferr.Wrap(ewferr.IO, "infofile.WriteSection", err)
		}
	}
	if _, err := fmt.Fprintf(w, "</%s>\n\n", id); err != nil {
		return ewferr.Wrap(ewferr.IO, "infofile.WriteSection", err)
	}
	return ewferr.Wrap(ewferr.IO, "infofile.WriteSection", w.Flush())
}
