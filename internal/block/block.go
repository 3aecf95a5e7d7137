// Package block implements the block-storage collaborator behind LOAD/THRU:
// 1 KiB blocks, block 0 reserved, addressed through GetBuffer/Update/Flush.
// The core only ever needs a buffer to read/write and a flush hook; this
// package supplies the simplest collaborator satisfying that contract,
// backed by internal/mem.Bytes the same sparse, gap-tolerant way that avoids
// committing storage for blocks that are never touched.
package block

import (
	"errors"
	"fmt"

	"github.com/starforth/starforth/internal/mem"
)

// Size is the fixed block size in bytes (spec.md "1 KiB blocks").
const Size = 1024

// ErrReservedBlock is returned for any access to block 0 (spec.md "block 0
// is reserved").
var ErrReservedBlock = errors.New("block: block 0 is reserved")

// Store is the in-memory block-storage collaborator. A real deployment
// would flush to disk; Flush here is a no-op hook kept only so LOAD/THRU
// callers (and a future disk-backed Store) share one interface.
type Store struct {
	bytes mem.Bytes
}

// New returns an empty Store with no block limit (grows to fit whatever
// block numbers are touched).
func New() *Store { return &Store{} }

// GetBuffer returns the raw Size-byte buffer for block n, allocating it
// (zero-filled) on first touch (blk_get_buffer).
func (s *Store) GetBuffer(n uint) ([]byte, error) {
	if n == 0 {
		return nil, ErrReservedBlock
	}
	buf := make([]byte, Size)
	if err := s.bytes.Load(n*Size, buf); err != nil {
		return nil, fmt.Errorf("block %d: %w", n, err)
	}
	return buf, nil
}

// Update writes buf back to block n (blk_update). buf must be exactly Size
// bytes; a shorter buffer is zero-padded, a longer one truncated, matching
// GetBuffer's fixed-size contract.
func (s *Store) Update(n uint, buf []byte) error {
	if n == 0 {
		return ErrReservedBlock
	}
	padded := make([]byte, Size)
	copy(padded, buf)
	if err := s.bytes.Store(n*Size, padded); err != nil {
		return fmt.Errorf("block %d: %w", n, err)
	}
	return nil
}

// Flush is the collaborator's durability hook (blk_flush); a no-op for the
// in-memory store, kept so callers don't need to special-case it.
func (s *Store) Flush() error { return nil }
