package vm

import (
	"encoding/binary"

	"github.com/starforth/starforth/internal/cell"
)

// Arena is the single contiguous byte buffer that backs every VM address:
// a fixed, pre-sized region allocated once at construction and partitioned
// into dictionary/block-buffer/user/log regions that never move. There is
// no compaction and no relocation after init.
type Arena struct {
	bytes []byte

	// Region boundaries, all offsets into bytes. Dictionary grows upward
	// from DictStart, tracked externally by the dictionary's HERE pointer;
	// InDictBounds below is what actually enforces that HERE never crosses
	// DictEnd — compileCell, ALLOT and VARIABLE consult it before writing.
	DictStart, DictEnd   cell.Addr
	BlockStart, BlockEnd cell.Addr
	UserStart, UserEnd   cell.Addr
	LogStart, LogEnd     cell.Addr
}

// DefaultSize is the default arena size: 5 MiB.
const DefaultSize = 5 * 1024 * 1024

// Layout fractions for the fixed partitioning. The dictionary gets the
// largest share since colon definitions and the bootstrap vocabulary live
// there; block buffers, user space, and the log region split the rest.
const (
	dictFraction  = 0.55
	blockFraction = 0.25
	userFraction  = 0.15
	// remainder goes to the log region
)

// NewArena allocates a size-byte arena and partitions it per the layout
// fractions above. Returns an error (never a panic) on an unreasonably small
// size; callers treat that as a fatal arena-allocation failure.
func NewArena(size uint) (*Arena, error) {
	if size < 4096 {
		return nil, ErrArenaTooSmall
	}
	a := &Arena{bytes: make([]byte, size)}
	dictEnd := cell.Addr(float64(size) * dictFraction)
	blockEnd := dictEnd + cell.Addr(float64(size)*blockFraction)
	userEnd := blockEnd + cell.Addr(float64(size)*userFraction)

	a.DictStart, a.DictEnd = 0, dictEnd
	a.BlockStart, a.BlockEnd = dictEnd, blockEnd
	a.UserStart, a.UserEnd = blockEnd, userEnd
	a.LogStart, a.LogEnd = userEnd, cell.Addr(size)
	return a, nil
}

// Size returns the total arena size in bytes.
func (a *Arena) Size() cell.Addr { return cell.Addr(len(a.bytes)) }

// InBounds reports whether [addr, addr+n) lies entirely within the arena.
func (a *Arena) InBounds(addr cell.Addr, n cell.Addr) bool {
	if n == 0 {
		return addr <= a.Size()
	}
	end := addr + n
	return end >= addr && end <= a.Size()
}

// InDictBounds reports whether [addr, addr+n) lies entirely within the
// dictionary region. The compiler (compileCell), ALLOT and VARIABLE consult
// this before advancing HERE, so a runaway colon definition or ALLOT raises
// DictionaryFull instead of silently writing into the block-buffer region.
func (a *Arena) InDictBounds(addr cell.Addr, n cell.Addr) bool {
	end := addr + n
	return end >= addr && addr >= a.DictStart && end <= a.DictEnd
}

// LoadU8 reads a single byte. Every cell popped as a VM address must pass
// this bounds check before being dereferenced.
func (a *Arena) LoadU8(addr cell.Addr) (byte, error) {
	if !a.InBounds(addr, 1) {
		return 0, AddrError(addr)
	}
	return a.bytes[addr], nil
}

// StoreU8 writes a single byte.
func (a *Arena) StoreU8(addr cell.Addr, v byte) error {
	if !a.InBounds(addr, 1) {
		return AddrError(addr)
	}
	a.bytes[addr] = v
	return nil
}

// LoadCell reads a native-endian Cell at addr.
func (a *Arena) LoadCell(addr cell.Addr) (cell.Cell, error) {
	if !a.InBounds(addr, cell.Size) {
		return 0, AddrError(addr)
	}
	v := binary.LittleEndian.Uint64(a.bytes[addr : addr+cell.Size])
	return cell.Cell(v), nil
}

// StoreCell writes a native-endian Cell at addr.
func (a *Arena) StoreCell(addr cell.Addr, v cell.Cell) error {
	if !a.InBounds(addr, cell.Size) {
		return AddrError(addr)
	}
	binary.LittleEndian.PutUint64(a.bytes[addr:addr+cell.Size], uint64(v))
	return nil
}

// LoadBytes copies n bytes starting at addr into a fresh slice, for block
// I/O and any counted-string reads a vocabulary word needs.
func (a *Arena) LoadBytes(addr cell.Addr, n int) ([]byte, error) {
	if !a.InBounds(addr, cell.Addr(n)) {
		return nil, AddrError(addr)
	}
	buf := make([]byte, n)
	copy(buf, a.bytes[addr:int(addr)+n])
	return buf, nil
}

// StoreBytes copies buf into the arena starting at addr.
func (a *Arena) StoreBytes(addr cell.Addr, buf []byte) error {
	if !a.InBounds(addr, cell.Addr(len(buf))) {
		return AddrError(addr)
	}
	copy(a.bytes[addr:], buf)
	return nil
}

// Align rounds addr up to the next cell boundary (ALIGN): HERE stays
// cell-aligned after any ALIGN.
func Align(addr cell.Addr) cell.Addr {
	const mask = cell.Size - 1
	return (addr + mask) &^ mask
}
