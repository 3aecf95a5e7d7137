package interp

import (
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/runeio"
	"github.com/starforth/starforth/internal/vm"
)

// Word reads the next space-delimited token from the input queue: skip
// leading whitespace, then collect runes until the next delimiter or end of
// input. Returns io.EOF once every queued source is exhausted.
func (m *Machine) Word() (string, error) {
	var sb strings.Builder
	seenAny := false
	for {
		r, _, err := m.Input.ReadRune()
		if err != nil {
			if err == io.EOF {
				if !seenAny {
					return "", io.EOF
				}
				break
			}
			return "", err
		}
		if unicode.IsSpace(r) {
			if seenAny {
				break
			}
			continue
		}
		seenAny = true
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

// parseLiteral parses a token as a signed integer or a FORTH-79 character
// literal, against a 64-bit cell. Character literals accept a quoted rune
// ('c), a named control mnemonic (<ESC>), or a caret form (^[) — whatever
// runeio.UnquoteRune recognizes.
func parseLiteral(token string) (cell.Cell, error) {
	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		return cell.Cell(n), nil
	}
	if v, err := runeio.UnquoteRune(token); err == nil {
		return cell.Cell(v), nil
	}
	return 0, strconv.ErrSyntax
}

// scanDelimited reads runes from the input queue up to (and consuming) the
// next occurrence of delim, skipping a single leading space the way FORTH-79
// word-parsing conventionally does for a quoted string immediately after its
// introducing word. ABORT" uses this to capture its message text at
// compile time.
func (m *Machine) scanDelimited(delim rune) (string, error) {
	var sb strings.Builder
	r, _, err := m.Input.ReadRune()
	if err != nil {
		return "", err
	}
	if r != ' ' {
		sb.WriteRune(r)
	}
	for {
		r, _, err := m.Input.ReadRune()
		if err != nil {
			return sb.String(), err
		}
		if r == delim {
			return sb.String(), nil
		}
		sb.WriteRune(r)
	}
}

// InterpretWord resolves one token against the dictionary/cache, then either
// compiles it, runs it immediately, or (failing both) parses it as a number
// literal — compiled as a LIT pair in compile mode, pushed directly in
// interpret mode.
func (m *Machine) InterpretWord(token string) error {
	if e := m.resolve(token); e != nil {
		if m.Compiling && !e.Immediate() {
			_, err := m.compileCell(cell.Cell(e.WordID))
			return err
		}
		return m.RunEntry(e)
	}

	v, err := parseLiteral(token)
	if err != nil {
		return vm.Error{Kind: vm.KindUnknownWord, Word: token}
	}
	if m.Compiling {
		if _, err := m.compileCell(opLit.cell()); err != nil {
			return err
		}
		_, err = m.compileCell(v)
		return err
	}
	return m.Data.Push(v)
}

// Interpret runs the outer interpreter loop: read a word, interpret it,
// repeat, until the input queue is exhausted. A nil return at EOF is
// the normal "ok, waiting for more input" outcome; callers driving an
// interactive REPL push another source onto Input and call Interpret again.
//
// A failed word unwinds rather than leaving the machine half-compiled: the
// rest of the current input line is discarded, the return stack is cleared,
// and compile mode is abandoned, so the next Interpret call starts clean at
// the interpreter's top level regardless of where the failure happened.
func (m *Machine) Interpret() error {
	for {
		token, err := m.Word()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.InterpretWord(token); err != nil {
			m.Compiling = false
			m.Return.Clear()
			m.Input.DiscardLine()
			return err
		}
	}
}
