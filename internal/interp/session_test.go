package interp_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/interp"
	"github.com/starforth/starforth/internal/vm"
)

// withCapturedOutput builds a machine exactly like newMachine but redirects
// EMIT/./ABORT"'s writes into an in-memory buffer so tests can assert on
// printed text rather than only stack contents.
func withCapturedOutput(t *testing.T, src string) (*interp.Machine, *bytes.Buffer) {
	t.Helper()
	m := newMachine(t, src)
	var buf bytes.Buffer
	m.SetOutput(&buf)
	return m, &buf
}

func TestRecursiveFactorial(t *testing.T) {
	m, out := withCapturedOutput(t, ": F RECURSIVE DUP 1 > IF DUP 1 - F * THEN ; 5 F .")
	require.NoError(t, m.Interpret())
	require.Equal(t, "120 ", out.String())
}

func TestRecursiveOutsideCompilationErrors(t *testing.T) {
	m := newMachine(t, "RECURSIVE")
	err := m.Interpret()
	require.Error(t, err)
	require.ErrorIs(t, err, vm.KindCompileOnly)
}

func TestDotPrintsAndConsumesTheValue(t *testing.T) {
	m, out := withCapturedOutput(t, "42 .")
	require.NoError(t, m.Interpret())
	require.Equal(t, "42 ", out.String())
	require.Equal(t, 0, m.Data.Len())
}

func TestDotOnEmptyStackUnderflows(t *testing.T) {
	m := newMachine(t, ".")
	err := m.Interpret()
	require.ErrorIs(t, err, vm.KindStackUnderflow)
}

func TestUnloopDiscardsLoopFrame(t *testing.T) {
	m := newMachine(t, ": X 5 0 DO UNLOOP 99 LEAVE LOOP ; X")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(99), top(t, m))
	require.Equal(t, 0, m.Return.Len(), "UNLOOP must leave no loop frame behind")
}

func TestQuitClearsReturnStackAndStopsTheLine(t *testing.T) {
	m, out := withCapturedOutput(t, "1 2 3 QUIT 999 .")
	err := m.Interpret()
	require.ErrorIs(t, err, interp.ErrQuit)
	require.Equal(t, "", out.String(), "words after QUIT on the same line must never run")
	require.Equal(t, 0, m.Return.Len())
	require.Equal(t, cell.Cell(3), top(t, m), "QUIT only clears the return stack, not the data stack")
	require.False(t, m.Compiling)
}

func TestQuitInsideADefinitionAbandonsTheRestOfItsBody(t *testing.T) {
	m := newMachine(t, ": BAD 1 2 QUIT 3 ; BAD")
	err := m.Interpret()
	require.ErrorIs(t, err, interp.ErrQuit)
	require.Equal(t, 2, m.Data.Len(), "the 3 after QUIT inside BAD's body must never run")
}

func TestAbortClearsBothStacksAndCompileState(t *testing.T) {
	m := newMachine(t, "1 2 3 ABORT")
	err := m.Interpret()
	require.ErrorIs(t, err, interp.ErrAbort)
	require.Equal(t, 0, m.Data.Len())
	require.Equal(t, 0, m.Return.Len())
	require.False(t, m.Compiling)
}

func TestAbortDiscardsRestOfLine(t *testing.T) {
	m, out := withCapturedOutput(t, "1 2 3 ABORT 4 5 6 .")
	err := m.Interpret()
	require.ErrorIs(t, err, interp.ErrAbort)
	require.Equal(t, "", out.String(), "tokens after ABORT on the same line must never run")
}

func TestAbortQuoteFiresOnTrueFlag(t *testing.T) {
	m, out := withCapturedOutput(t, `: CHECK 0= ABORT" value was zero" ; 0 CHECK`)
	err := m.Interpret()
	require.ErrorIs(t, err, interp.ErrAbort)
	require.Equal(t, "value was zero ", out.String())
	require.Equal(t, 0, m.Data.Len())
}

func TestAbortQuoteSkipsOnFalseFlag(t *testing.T) {
	m, out := withCapturedOutput(t, `: CHECK 0= ABORT" value was zero" ; 1 CHECK 42 .`)
	require.NoError(t, m.Interpret())
	require.Equal(t, "42 ", out.String())
}

func TestAbortQuoteOutsideCompilationErrors(t *testing.T) {
	m := newMachine(t, `ABORT" oops"`)
	err := m.Interpret()
	require.Error(t, err)
	require.ErrorIs(t, err, vm.KindCompileOnly)
}

func TestColonDefinitionIsSmudgedUntilSemicolon(t *testing.T) {
	// Without a matching RECURSIVE, a name appearing inside its own
	// definition must resolve to whatever prior definition is visible (the
	// new entry is smudged until ;), not recurse into the partial body.
	m := newMachine(t, ": COUNT 1 ; : COUNT COUNT 1 + ; COUNT")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(2), top(t, m))
}

func TestAllotPastDictEndErrors(t *testing.T) {
	m := newMachine(t, "100000000 ALLOT")
	err := m.Interpret()
	require.Error(t, err)
	require.ErrorIs(t, err, vm.KindDictionaryFull)
}
