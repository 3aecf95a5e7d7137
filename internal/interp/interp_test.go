package interp_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/block"
	"github.com/starforth/starforth/internal/boot"
	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/dict"
	"github.com/starforth/starforth/internal/hotcache"
	"github.com/starforth/starforth/internal/interp"
	"github.com/starforth/starforth/internal/srcqueue"
	"github.com/starforth/starforth/internal/stackmach"
	"github.com/starforth/starforth/internal/vm"
	"github.com/starforth/starforth/internal/window"
)

// newMachine builds a bootstrapped Machine (primitive catalog plus the
// embedded standard-vocabulary kernel) and feeds it src, the same sequence
// engine.New drives at construction time, minus the heartbeat/cache tuning
// loop this package's tests don't need.
func newMachine(t *testing.T, src string) *interp.Machine {
	t.Helper()
	arena, err := vm.NewArena(vm.DefaultSize)
	require.NoError(t, err)

	m := interp.New(arena, stackmach.New(256), stackmach.New(256), dict.New(arena.DictStart), window.New(64, 64), hotcache.New(32), nil, nil, nil)
	m.Input = &srcqueue.Queue{}
	m.Blocks = block.New()

	require.NoError(t, interp.Bootstrap(m))
	m.Input.Push(strings.NewReader(kernelSource(t)))
	require.NoError(t, m.Interpret())
	m.Dict.EstablishFence()

	m.Input.Push(strings.NewReader(src))
	return m
}

func kernelSource(t *testing.T) string {
	t.Helper()
	var buf strings.Builder
	_, err := boot.Kernel.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

// top pops and returns the sole value newMachine's callers expect to find
// left on the data stack after running their fixture.
func top(t *testing.T, m *interp.Machine) cell.Cell {
	t.Helper()
	v, err := m.Data.Pop()
	require.NoError(t, err)
	return v
}

func TestArithmeticPrimitives(t *testing.T) {
	m := newMachine(t, "2 3 + 4 *")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(20), top(t, m))
}

func TestColonDefinitionAndExecution(t *testing.T) {
	m := newMachine(t, ": SQUARE DUP * ; 5 SQUARE")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(25), top(t, m))
}

func TestIfElseThen(t *testing.T) {
	m := newMachine(t, ": SIGN DUP 0 > IF DROP 1 ELSE 0 < IF 1 ELSE 0 THEN THEN ; -5 SIGN")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(1), top(t, m))
}

func TestDoLoop(t *testing.T) {
	m := newMachine(t, ": SUM3 0 3 0 DO I + LOOP ; SUM3")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(3), top(t, m)) // 0+1+2
}

func TestQDoSkipsEmptyRange(t *testing.T) {
	m := newMachine(t, ": NOOP3 0 3 3 ?DO I + LOOP ; NOOP3")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(0), top(t, m), "?DO with start == limit must skip the body entirely")
}

func TestPlusLoopCustomStep(t *testing.T) {
	m := newMachine(t, ": EVENS 0 10 0 DO I + 2 +LOOP ; EVENS")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(20), top(t, m)) // 0+2+4+6+8
}

func TestBeginWhileRepeat(t *testing.T) {
	m := newMachine(t, ": FACT5 1 5 BEGIN DUP 1 > WHILE SWAP OVER * SWAP 1- REPEAT DROP ; FACT5")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(120), top(t, m))
}

func TestUnknownWordErrors(t *testing.T) {
	m := newMachine(t, "NOSUCHWORD")
	err := m.Interpret()
	require.Error(t, err)
	require.ErrorIs(t, err, vm.KindUnknownWord)
}

func TestStackUnderflowErrors(t *testing.T) {
	m := newMachine(t, "+")
	err := m.Interpret()
	require.ErrorIs(t, err, vm.KindStackUnderflow)
}

func TestDivideByZero(t *testing.T) {
	m := newMachine(t, "5 0 /")
	err := m.Interpret()
	require.ErrorIs(t, err, vm.KindDivideByZero)
}

func TestForgetRemovesWord(t *testing.T) {
	m := newMachine(t, ": TEMP 1 2 + ; FORGET TEMP TEMP")
	err := m.Interpret()
	require.Error(t, err, "TEMP must be gone after FORGET")
	require.ErrorIs(t, err, vm.KindUnknownWord)
}

func TestForgetCannotCrossKernelFence(t *testing.T) {
	m := newMachine(t, "FORGET DUP")
	err := m.Interpret()
	require.Error(t, err, "the bootstrap kernel is fenced off from FORGET")
}

func TestRedefinitionInvalidatesHotCache(t *testing.T) {
	m := newMachine(t, ": GREETING 1 ; GREETING GREETING GREETING : GREETING 2 ; GREETING")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(2), top(t, m), "a redefinition must win even if the old entry had been cached")
}

func TestVariableStoreFetch(t *testing.T) {
	m := newMachine(t, "VARIABLE X 42 X ! X @")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(42), top(t, m))
}

func TestConstant(t *testing.T) {
	m := newMachine(t, "99 CONSTANT ANSWER ANSWER")
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(99), top(t, m))
}

func TestByeSentinel(t *testing.T) {
	m := newMachine(t, "1 2 + BYE 999 999 999")
	err := m.Interpret()
	require.ErrorIs(t, err, interp.ErrBye)
	require.Equal(t, cell.Cell(3), top(t, m), "words after BYE must never run")
}

func TestLoadRunsBlockAsSource(t *testing.T) {
	m := newMachine(t, "")
	payload := make([]byte, block.Size)
	copy(payload, "7 7 +")
	require.NoError(t, m.Blocks.Update(1, payload))

	m.Input.Push(strings.NewReader("1 LOAD"))
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(14), top(t, m))
}

func TestLoadWithNoBlockStoreErrors(t *testing.T) {
	m := newMachine(t, "1 LOAD")
	m.Blocks = nil
	err := m.Interpret()
	require.ErrorIs(t, err, interp.ErrNoBlockStore)
}

func TestThruRunsBlockRangeInOrder(t *testing.T) {
	m := newMachine(t, "")
	one := make([]byte, block.Size)
	copy(one, "1")
	two := make([]byte, block.Size)
	copy(two, "2 +")
	require.NoError(t, m.Blocks.Update(1, one))
	require.NoError(t, m.Blocks.Update(2, two))

	m.Input.Push(strings.NewReader("1 2 THRU"))
	require.NoError(t, m.Interpret())
	require.Equal(t, cell.Cell(3), top(t, m), "block 1 pushes 1, block 2 adds 2")
}
