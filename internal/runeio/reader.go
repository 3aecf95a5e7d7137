// Package runeio provides the rune-oriented reading and ANSI-aware writing
// the outer interpreter's input queue and EMIT build on, plus a FORTH-79
// character-literal parser (UnquoteRune) that understands caret and named
// control-mnemonic forms alongside a plain quoted rune.
package runeio

import (
	"bufio"
	"io"
)

// Reader is an io.Reader that also supports reading runes: the shape
// srcqueue.Queue needs so Word() can tokenize a source one rune at a time
// regardless of whether that source is the embedded kernel string, a
// LOAD-pushed block buffer, or an interactive input line.
type Reader interface {
	io.Reader
	io.RuneReader
}

// NewReader returns a Reader from r; if r already implements, it is simply returned.
// Otherwise bufio.Reader is used to provide rune reading around the given reader.
// If the r implements Name() string, so will the returned Reader.
func NewReader(r io.Reader) Reader {
	if impl, ok := r.(Reader); ok {
		return impl
	}
	rr := runeReader{r, bufio.NewReader(r)}
	if impl, ok := r.(interface{ Name() string }); ok {
		return namedRuneReader{rr, impl.Name()}
	}
	return rr
}

type runeReader struct {
	io.Reader
	io.RuneReader
}

type namedRuneReader struct {
	Reader
	name string
}

func (nr namedRuneReader) Name() string { return nr.name }
