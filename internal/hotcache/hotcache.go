// Package hotcache implements the hot-words cache: a small, direct-mapped,
// advisory accelerator over dictionary lookup. A miss always falls through
// to the full dictionary chain, so the cache can never be a source of
// incorrect results — only of slow ones.
package hotcache

import (
	"hash/fnv"

	"github.com/starforth/starforth/internal/dict"
	"github.com/starforth/starforth/internal/fixedpoint"
)

// DefaultSlots is the default number of cache slots.
const DefaultSlots = 256

// Cache is a direct-mapped table keyed by a hash of the word name. On
// collision, the colder (lower-heat) resident loses.
type Cache struct {
	slots []slot
}

type slot struct {
	occupied bool
	name     string
	entry    *dict.Entry
}

// New returns a Cache with n slots (rounded up to at least 1).
func New(n int) *Cache {
	if n < 1 {
		n = 1
	}
	return &Cache{slots: make([]slot, n)}
}

func (c *Cache) index(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32()) % len(c.slots)
}

// Lookup returns the cached entry for name if present and still
// name-matching (guards against FORGET-recycled ids reusing a slot's word
// identity). Callers must still treat a hit as advisory: verify it still
// resolves the same name the full chain would; this Lookup already does
// that verification by comparing Name.
func (c *Cache) Lookup(name string) (*dict.Entry, bool) {
	s := &c.slots[c.index(name)]
	if s.occupied && s.name == name {
		return s.entry, true
	}
	return nil, false
}

// Consider offers e for promotion if its heat crosses promoteAt, evicting a
// colder resident on collision.
func (c *Cache) Consider(e *dict.Entry, promoteAt fixedpoint.Q48_16) {
	if e.Physics.Heat.Cmp(promoteAt) < 0 {
		return
	}
	s := &c.slots[c.index(e.Name)]
	if !s.occupied || s.entry.Physics.Heat.Cmp(e.Physics.Heat) <= 0 {
		s.occupied = true
		s.name = e.Name
		s.entry = e
	}
}

// Demote evicts e if it is resident and its heat has fallen below
// demoteBelow.
func (c *Cache) Demote(e *dict.Entry, demoteBelow fixedpoint.Q48_16) {
	s := &c.slots[c.index(e.Name)]
	if s.occupied && s.entry == e && e.Physics.Heat.Cmp(demoteBelow) < 0 {
		s.occupied = false
		s.entry = nil
	}
}

// Invalidate clears every slot. Called wholesale on any dictionary
// structural mutation (new entry, FORGET); the heartbeat rebuilds it
// during its next cycle.
func (c *Cache) Invalidate() {
	for i := range c.slots {
		c.slots[i] = slot{}
	}
}

// Rebuild repopulates the cache from scratch given the current percentile
// cutoff, promoting every entry at or above it from the supplied candidate
// list (typically the dictionary's hot tail as identified by the rolling
// window). Called by the heartbeat's cache-reorganization step.
func (c *Cache) Rebuild(candidates []*dict.Entry, promoteAt fixedpoint.Q48_16) {
	c.Invalidate()
	for _, e := range candidates {
		c.Consider(e, promoteAt)
	}
}

// ResidentCount reports how many slots are currently occupied, used by the
// heartbeat's rebuild-threshold decision: rebuild when enough residents
// have fallen below the new 75th-percentile cutoff.
func (c *Cache) ResidentCount() int {
	n := 0
	for _, s := range c.slots {
		if s.occupied {
			n++
		}
	}
	return n
}

// StaleBelow counts resident entries whose heat has fallen below cutoff,
// without evicting them — a dry-run for the rebuild-threshold decision.
func (c *Cache) StaleBelow(cutoff fixedpoint.Q48_16) int {
	n := 0
	for _, s := range c.slots {
		if s.occupied && s.entry.Physics.Heat.Cmp(cutoff) < 0 {
			n++
		}
	}
	return n
}
