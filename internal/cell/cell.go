// Package cell defines the native machine word and VM-address types shared
// across every component of the core.
package cell

// Cell is a signed machine word. Arithmetic wraps on overflow except where a
// primitive explicitly reports it.
type Cell int64

// Addr is an unsigned byte offset into the arena. It is the only form of
// address ever exposed to word code; host pointers are never placed on
// either stack.
type Addr uint64

// Size of a single Cell in bytes, used for cell-alignment (ALIGN) and
// threaded-code stepping.
const Size = 8
