// Package srcqueue implements the terminal input buffer's underlying source
// chain: a queue of named, closeable rune sources consumed in order. The
// outer interpreter's WORD/SOURCE primitives read through a single Queue;
// LOAD/THRU (driven by the block-storage collaborator) push a block's text
// as the next named source ahead of whatever is queued after it, chaining
// the bootstrap kernel, a startup script, and the interactive source into
// one continuous stream.
package srcqueue

import (
	"bytes"
	"fmt"
	"io"

	"github.com/starforth/starforth/internal/runeio"
)

// Location names a line within one of the queued sources.
type Location struct {
	Name string
	Line int
}

func (loc Location) String() string { return fmt.Sprintf("%v:%v", loc.Name, loc.Line) }

// Line combines a Location with the bytes scanned so far on it.
type Line struct {
	Location
	bytes.Buffer
}

func (il Line) String() string { return fmt.Sprintf("%v %q", il.Location, il.Buffer.String()) }

// Queue implements sequential rune reading through zero or more input
// streams, tracking the current and most recently completed line to
// support error diagnostics.
type Queue struct {
	rr      io.RuneReader
	Sources []io.Reader
	Last    Line
	Scan    Line
}

// Push appends a source to the end of the queue.
func (q *Queue) Push(r io.Reader) { q.Sources = append(q.Sources, r) }

// PushFront inserts a source ahead of everything currently queued, so it is
// consumed next. Used by THRU to interleave a block's text before the
// source that requested it resumes.
func (q *Queue) PushFront(r io.Reader) {
	q.Sources = append([]io.Reader{r}, q.Sources...)
}

// ReadRune reads one rune from the current source, rolling Scan into Last at
// each line feed and advancing to the next queued source at EOF.
func (q *Queue) ReadRune() (rune, int, error) {
	if q.rr == nil && !q.nextSource() {
		return 0, 0, io.EOF
	}

	r, n, err := q.rr.ReadRune()
	if r == '\n' {
		q.nextLine()
	} else {
		q.Scan.WriteRune(r)
	}

	if r != 0 {
		return r, n, nil
	}
	if err == io.EOF && q.nextSource() {
		return q.ReadRune()
	}
	return 0, n, err
}

// DiscardLine drains runes up to and including the next newline (or EOF),
// throwing away whatever followed an aborted word on the current input
// line. The outer interpreter's error unwind calls this so a bad token
// doesn't leave the rest of the line to be reinterpreted as new commands.
func (q *Queue) DiscardLine() {
	for {
		r, _, err := q.ReadRune()
		if err != nil || r == '\n' {
			return
		}
	}
}

func (q *Queue) nextLine() {
	q.Last.Reset()
	q.Last.Name = q.Scan.Name
	q.Last.Line = q.Scan.Line
	q.Last.Write(q.Scan.Bytes())
	q.Scan.Reset()
	q.Scan.Line++
}

func (q *Queue) nextSource() bool {
	q.nextLine()
	if q.rr != nil {
		if cl, ok := q.rr.(io.Closer); ok {
			cl.Close()
		}
		q.rr = nil
	}
	if len(q.Sources) > 0 {
		r := q.Sources[0]
		q.Sources = q.Sources[1:]
		q.rr = runeio.NewReader(r)
		q.Scan.Name = nameOf(r)
		q.Scan.Line = 1
	}
	return q.rr != nil
}

func nameOf(obj interface{}) string {
	if nom, ok := obj.(interface{ Name() string }); ok {
		return nom.Name()
	}
	return fmt.Sprintf("<unnamed %T>", obj)
}
