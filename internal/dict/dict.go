// Package dict implements the dictionary: the linked list of word entries,
// stable word-ids with free-list recycling, the FORGET-safe fence, and the
// word-id index the heartbeat uses for O(1) speculative lookup.
package dict

import (
	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/heat"
)

// Flag is the dictionary entry's compile/visibility bit set. PINNED and
// FROZEN live on Entry.Physics.StateFlags instead (heat.StateFlag) since
// they are heat-model concerns, not search/compile concerns.
type Flag uint8

const (
	Immediate Flag = 1 << iota
	Hidden
	Smudged
	Compiled
)

// MaxNameLen is the maximum counted-string name length: 31 bytes.
const MaxNameLen = 31

// Body identifies how a threaded-code body is executed: either a Go
// primitive function, or (for colon words) the arena offset of the first
// threaded cell.
type Body struct {
	Primitive func(Invoker) error // nil for colon words
	BodyAddr  cell.Addr           // valid when Primitive == nil
}

// Invoker is the minimal surface a primitive needs; satisfied by the
// interpreter (internal/interp.Machine), kept here as an interface so dict
// has no import-cycle on interp.
type Invoker interface {
	DataPush(cell.Cell) error
	DataPop() (cell.Cell, error)
}

// Entry is one dictionary record.
type Entry struct {
	Link     *Entry // previous entry; defines the search chain
	Body     Body
	Flags    Flag
	Name     string
	WordID   uint32
	Physics  heat.Physics
	SelfAddr cell.Addr // the entry's own header offset, for wordOf/dump
}

func (e *Entry) Immediate() bool { return e.Flags&Immediate != 0 }
func (e *Entry) Hidden() bool    { return e.Flags&Hidden != 0 }
func (e *Entry) Smudged() bool   { return e.Flags&Smudged != 0 }
func (e *Entry) Compiled() bool  { return e.Flags&Compiled != 0 }

func (e *Entry) setFlag(f Flag, v bool) {
	if v {
		e.Flags |= f
	} else {
		e.Flags &^= f
	}
}

func (e *Entry) SetImmediate(v bool) { e.setFlag(Immediate, v) }
func (e *Entry) SetHidden(v bool)    { e.setFlag(Hidden, v) }
func (e *Entry) SetSmudged(v bool)   { e.setFlag(Smudged, v) }
func (e *Entry) SetCompiled(v bool)  { e.setFlag(Compiled, v) }

// Searchable reports whether a lookup should consider this entry: neither
// hidden nor smudged.
func (e *Entry) Searchable() bool { return !e.Hidden() && !e.Smudged() }

// Dictionary owns the entry chain, the word-id allocator/recycler, and the
// FORGET fence.
type Dictionary struct {
	latest *Entry
	byID   map[uint32]*Entry

	nextID  uint32
	freeIDs []uint32

	fenceLatest *Entry
	fenceHere   cell.Addr

	here cell.Addr // HERE: next free dictionary-region offset
}

// New returns an empty Dictionary whose dictionary region starts at
// dictStart (the arena's DictStart, typically 0).
func New(dictStart cell.Addr) *Dictionary {
	return &Dictionary{
		byID:   make(map[uint32]*Entry),
		nextID: 1,
		here:   dictStart,
	}
}

// Latest returns the most recently defined (and still live) entry.
func (d *Dictionary) Latest() *Entry { return d.latest }

// Here returns the current dictionary-region high-water mark.
func (d *Dictionary) Here() cell.Addr { return d.here }

// SetHere is used by the compiler driver to reserve arena space for a
// colon body as it compiles cells; Align is applied by the caller, which
// keeps HERE cell-aligned after ALIGN.
func (d *Dictionary) SetHere(addr cell.Addr) { d.here = addr }

// EstablishFence records the current latest/HERE as the boundary FORGET may
// never cross. Called once, after the standard word set is registered.
func (d *Dictionary) EstablishFence() {
	d.fenceLatest = d.latest
	d.fenceHere = d.here
}

// allocID pops a recycled id if one is available, else advances the
// monotonic counter.
func (d *Dictionary) allocID() uint32 {
	if n := len(d.freeIDs); n > 0 {
		id := d.freeIDs[n-1]
		d.freeIDs = d.freeIDs[:n-1]
		return id
	}
	id := d.nextID
	d.nextID++
	return id
}

// Define appends a new entry at HERE and makes it latest. The caller
// supplies body, flags, and the arena offset this header occupies
// (selfAddr). The header is logically arena-resident but the Go-level Entry
// is the canonical record here; nothing re-parses the byte arena on lookup.
func (d *Dictionary) Define(name string, body Body, selfAddr cell.Addr) (*Entry, error) {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	e := &Entry{
		Link:     d.latest,
		Body:     body,
		Name:     name,
		WordID:   d.allocID(),
		SelfAddr: selfAddr,
	}
	d.latest = e
	d.byID[e.WordID] = e
	return e, nil
}

// Lookup walks the search chain from latest, skipping hidden/smudged
// entries, newest definition first (a single FORTH vocabulary chain;
// CONTEXT-vocabulary layering is a VM-level concern built atop multiple
// Dictionary chains, not modeled here).
func (d *Dictionary) Lookup(name string) *Entry {
	for e := d.latest; e != nil; e = e.Link {
		if e.Searchable() && e.Name == name {
			return e
		}
	}
	return nil
}

// ByID resolves a word-id to its live entry, or nil if the id is stale
// (recycled or the entry was forgotten). O(1), used by the heartbeat for
// speculative lookups into the rolling window.
func (d *Dictionary) ByID(id uint32) *Entry { return d.byID[id] }

// WordOf returns the name of and offset within the entry whose body
// contains addr, for diagnostics.
func (d *Dictionary) WordOf(addr cell.Addr) (string, cell.Addr) {
	for e := d.latest; e != nil; e = e.Link {
		if e.SelfAddr <= addr {
			return e.Name, addr - e.SelfAddr
		}
	}
	return "", 0
}

// DumpEntry is one line of a dictionary dump, carrying heat alongside the
// usual name/id/address fields.
type DumpEntry struct {
	Name     string
	WordID   uint32
	SelfAddr cell.Addr
	Flags    Flag
	Heat     heat.Physics
}

// Dump returns every live entry from latest back to the oldest, for
// diagnostics and the CLI's -dump flag.
func (d *Dictionary) Dump() []DumpEntry {
	var out []DumpEntry
	for e := d.latest; e != nil; e = e.Link {
		out = append(out, DumpEntry{
			Name:     e.Name,
			WordID:   e.WordID,
			SelfAddr: e.SelfAddr,
			Flags:    e.Flags,
			Heat:     e.Physics,
		})
	}
	return out
}

// Forget walks back from latest, freeing entries (recycling their word-ids)
// until and including the named entry, then rewinds HERE to that entry's
// own offset. Refuses to cross the fence.
func (d *Dictionary) Forget(name string) error {
	target := d.Lookup(name)
	if target == nil {
		return ErrUnknownWord
	}
	if d.crossesFence(target) {
		return ErrFenceViolation
	}

	for e := d.latest; e != nil; {
		next := e.Link
		delete(d.byID, e.WordID)
		d.freeIDs = append(d.freeIDs, e.WordID)
		if e == target {
			d.latest = next
			d.here = target.SelfAddr
			return nil
		}
		e = next
	}
	return ErrUnknownWord
}

// crossesFence reports whether forgetting target would remove the fenced
// boundary entry or anything before it.
func (d *Dictionary) crossesFence(target *Entry) bool {
	if d.fenceLatest == nil {
		return false // no fence established yet (still booting)
	}
	for e := d.latest; e != nil; e = e.Link {
		if e == d.fenceLatest {
			return true
		}
		if e == target {
			return false
		}
	}
	return true
}

// sentinel errors, taxonomy-mapped by callers in internal/vm.
type dictError string

func (e dictError) Error() string { return string(e) }

const (
	ErrUnknownWord    = dictError("unknown word")
	ErrFenceViolation = dictError("dictionary fence violation")
)
