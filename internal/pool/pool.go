// Package pool implements FileIOPool: a bounded LRU of open OS file
// handles addressed by a stable pool-entry index, the opaque
// (entry, offset) -> bytes collaborator consumed by SegmentTable.
//
// The on-disk access pattern is plain os.File open/read/seek; the only
// addition here is the LRU cap over concurrently-open handles, built on
// the stdlib container/list rather than a third-party LRU package.
package pool

import (
	"container/list"
	"fmt"
	"io"
	"os"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

// Mode selects how an entry's backing file is opened.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeReadWrite
)

// Unlimited disables the LRU cap (every opened entry stays open).
const Unlimited = 0

type entry struct {
	index int
	name  string
	mode  Mode
	// size survives physical close/reopen so a logically-open entry
	// behaves identically whether or not its os.File handle is currently
	// resident; reads and writes take an explicit offset, so no cursor
	// needs to be kept.
	knownSize int64

	file    *os.File // nil when evicted
	lruElem *list.Element
}

// Pool is a bounded LRU cache of open *os.File handles keyed by a stable
// entry index. It is not safe for concurrent use by multiple goroutines;
// distinct acquisition/export jobs must each own their own Pool.
type Pool struct {
	maxOpen int // Unlimited (0) means uncapped
	entries map[int]*entry
	lru     *list.List // front = most recently used
	nextIdx int
}

// New creates an empty pool. maxOpen caps the number of simultaneously
// open OS handles; pass Unlimited for no cap.
func New(maxOpen int) *Pool {
	return &Pool{
		maxOpen: maxOpen,
		entries: make(map[int]*entry),
		lru:     list.New(),
	}
}

// MaxOpen returns the configured cap.
func (p *Pool) MaxOpen() int { return p.maxOpen }

// SetMaxOpen changes the cap, evicting immediately if the new cap is
// smaller than the number of currently open handles.
func (p *Pool) SetMaxOpen(n int) {
	p.maxOpen = n
	if n == Unlimited {
		return
	}
	for p.openCount() > n {
		if !p.evictOne() {
			break
		}
	}
}

func (p *Pool) openCount() int {
	n := 0
	for _, e := range p.entries {
		if e.file != nil {
			n++
		}
	}
	return n
}

// NewEntry registers a new pool entry bound to name, without opening it.
// Returns the stable entry index.
func (p *Pool) NewEntry(name string, mode Mode) int {
	idx := p.nextIdx
	p.nextIdx++
	p.entries[idx] = &entry{index: idx, name: name, mode: mode}
	return idx
}

// SetName rebinds the path for an already-registered entry (it must not
// currently be open).
func (p *Pool) SetName(entryIdx int, path string) error {
	e, ok := p.entries[entryIdx]
	if !ok {
		return ewferr.New(ewferr.ArgumentInvalid, "pool.SetName")
	}
	if e.file != nil {
		return ewferr.New(ewferr.AlreadySet, "pool.SetName")
	}
	e.name = path
	return nil
}

// Exists reports whether path exists on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (p *Pool) get(entryIdx int) (*entry, error) {
	e, ok := p.entries[entryIdx]
	if !ok {
		return nil, ewferr.New(ewferr.ArgumentInvalid, "pool: unknown entry")
	}
	return e, nil
}

// Open makes entryIdx's backing file resident, evicting the
// least-recently-used open entry first if the pool is at capacity.
func (p *Pool) Open(entryIdx int) error {
	e, err := p.get(entryIdx)
	if err != nil {
		return err
	}
	if e.file != nil {
		p.touch(e)
		return nil
	}
	if p.maxOpen != Unlimited && p.openCount() >= p.maxOpen {
		if !p.evictOne() {
			return ewferr.New(ewferr.IO, "pool.Open: cannot evict to make room")
		}
	}

	flag := os.O_RDONLY
	switch e.mode {
	case ModeWrite:
		flag = os.O_RDWR | os.O_CREATE
	case ModeReadWrite:
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(e.name, flag, 0o644)
	if err != nil {
		return ewferr.Wrap(ewferr.IO, "pool.Open", err)
	}
	e.file = f
	e.lruElem = p.lru.PushFront(e)
	if fi, statErr := f.Stat(); statErr == nil {
		e.knownSize = fi.Size()
	}
	return nil
}

func (p *Pool) touch(e *entry) {
	if e.lruElem != nil {
		p.lru.MoveToFront(e.lruElem)
	}
}

// evictOne closes the least-recently-used open entry. Its logical state
// (name, size) is preserved so a later access reopens transparently.
func (p *Pool) evictOne() bool {
	back := p.lru.Back()
	if back == nil {
		return false
	}
	e := back.Value.(*entry)
	p.lru.Remove(back)
	e.lruElem = nil
	if e.file != nil {
		if fi, err := e.file.Stat(); err == nil {
			e.knownSize = fi.Size()
		}
		e.file.Close()
		e.file = nil
	}
	return true
}

func (p *Pool) ensureOpen(e *entry) error {
	if e.file != nil {
		p.touch(e)
		return nil
	}
	return p.Open(e.index)
}

// Close physically closes entryIdx's handle without forgetting it; the
// entry remains logically registered and can be reopened by Open/Read/
// Write.
func (p *Pool) Close(entryIdx int) error {
	e, err := p.get(entryIdx)
	if err != nil {
		return err
	}
	if e.file == nil {
		return nil
	}
	if p.lru != nil && e.lruElem != nil {
		p.lru.Remove(e.lruElem)
		e.lruElem = nil
	}
	if fi, statErr := e.file.Stat(); statErr == nil {
		e.knownSize = fi.Size()
	}
	err = e.file.Close()
	e.file = nil
	if err != nil {
		return ewferr.Wrap(ewferr.IO, "pool.Close", err)
	}
	return nil
}

// CloseAll physically closes every open handle in the pool.
func (p *Pool) CloseAll() error {
	var firstErr error
	for idx := range p.entries {
		if err := p.Close(idx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Read fills buf starting at offset within entryIdx's file.
func (p *Pool) Read(entryIdx int, offset int64, buf []byte) (int, error) {
	e, err := p.get(entryIdx)
	if err != nil {
		return 0, err
	}
	if err := p.ensureOpen(e); err != nil {
		return 0, err
	}
	n, err := e.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, ewferr.Wrap(ewferr.IO, "pool.Read", err)
	}
	return n, nil
}

// Write writes buf to entryIdx's file starting at offset, growing the
// file as needed.
func (p *Pool) Write(entryIdx int, offset int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	e, err := p.get(entryIdx)
	if err != nil {
		return 0, err
	}
	if e.mode == ModeRead {
		return 0, ewferr.New(ewferr.InvalidMode, "pool.Write")
	}
	if err := p.ensureOpen(e); err != nil {
		return 0, err
	}
	n, err := e.file.WriteAt(buf, offset)
	if err != nil {
		return n, ewferr.Wrap(ewferr.IO, "pool.Write", err)
	}
	if offset+int64(n) > e.knownSize {
		e.knownSize = offset + int64(n)
	}
	return n, nil
}

// Size returns entryIdx's current byte length without requiring the
// handle to be resident.
func (p *Pool) Size(entryIdx int) (int64, error) {
	e, err := p.get(entryIdx)
	if err != nil {
		return 0, err
	}
	if e.file != nil {
		fi, statErr := e.file.Stat()
		if statErr != nil {
			return 0, ewferr.Wrap(ewferr.IO, "pool.Size", statErr)
		}
		e.knownSize = fi.Size()
		return e.knownSize, nil
	}
	if Exists(e.name) {
		fi, statErr := os.Stat(e.name)
		if statErr != nil {
			return 0, ewferr.Wrap(ewferr.IO, "pool.Size", statErr)
		}
		e.knownSize = fi.Size()
	}
	return e.knownSize, nil
}

// Name returns entryIdx's backing path.
func (p *Pool) Name(entryIdx int) (string, error) {
	e, err := p.get(entryIdx)
	if err != nil {
		return "", err
	}
	return e.name, nil
}

func (p *Pool) String() string {
	return fmt.Sprintf("pool(entries=%d, open=%d, max=%d)", len(p.entries), p.openCount(), p.maxOpen)
}
