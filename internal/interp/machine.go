// Package interp implements the inner and outer interpreters: threaded-code
// dispatch over the dictionary's execution tokens, and the TIB/WORD/number-
// or-word driver that turns source text into either immediate execution or
// compiled cells. It is the one package that ties together the arena, the
// stacks, the dictionary, and the heat/window/cache observability trio on
// every single word dispatch.
package interp

import (
	"fmt"
	"io"

	"github.com/starforth/starforth/internal/block"
	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/dict"
	"github.com/starforth/starforth/internal/fixedpoint"
	"github.com/starforth/starforth/internal/flushio"
	"github.com/starforth/starforth/internal/heartbeat"
	"github.com/starforth/starforth/internal/hotcache"
	"github.com/starforth/starforth/internal/logx"
	"github.com/starforth/starforth/internal/srcqueue"
	"github.com/starforth/starforth/internal/stackmach"
	"github.com/starforth/starforth/internal/vm"
	"github.com/starforth/starforth/internal/window"
)

// DecaySlopeSource is the minimal view the machine needs into the heartbeat
// to touch per-entry heat with the live slope; satisfied by
// *heartbeat.Heartbeat, kept as an interface so a machine can run with no
// heartbeat at all (slope pinned at its construction-time default).
type DecaySlopeSource interface {
	DecaySlope() fixedpoint.Q48_16
}

type fixedSlope fixedpoint.Q48_16

func (f fixedSlope) DecaySlope() fixedpoint.Q48_16 { return fixedpoint.Q48_16(f) }

// Machine is the running virtual machine: arena, stacks, dictionary, and the
// observability collaborators, plus the inner/outer interpreter state.
type Machine struct {
	logx.Mixin

	Arena  *vm.Arena
	Data   *stackmach.Stack
	Return *stackmach.Stack
	Dict   *dict.Dictionary
	Window *window.Window
	Cache  *hotcache.Cache
	Metrics *heartbeat.PipelineMetrics
	Slope  DecaySlopeSource
	Input  *srcqueue.Queue
	Out    flushio.WriteFlusher
	Blocks *block.Store

	IP        cell.Addr
	Compiling bool
	cf        controlFlow

	NowNs func() int64

	Halted   bool
	HaltErr  error
}

// New constructs a Machine over already-built collaborators. Nil Metrics or
// Slope are replaced with no-op/fixed-zero equivalents so a machine can be
// exercised without standing up a full heartbeat (e.g. in primitive unit
// tests).
func New(arena *vm.Arena, data, ret *stackmach.Stack, dictionary *dict.Dictionary, win *window.Window, cache *hotcache.Cache, metrics *heartbeat.PipelineMetrics, slope DecaySlopeSource, nowNs func() int64) *Machine {
	if metrics == nil {
		metrics = &heartbeat.PipelineMetrics{}
	}
	if slope == nil {
		slope = fixedSlope(fixedpoint.FromUint(0))
	}
	if nowNs == nil {
		nowNs = func() int64 { return 0 }
	}
	m := &Machine{
		Arena:   arena,
		Data:    data,
		Return:  ret,
		Dict:    dictionary,
		Window:  win,
		Cache:   cache,
		Metrics: metrics,
		Slope:   slope,
		NowNs:   nowNs,
		Out:     flushio.NewWriteFlusher(io.Discard),
	}
	m.cf.init()
	return m
}

// SetOutput redirects EMIT output, wrapping w in a WriteFlusher if it isn't
// already one.
func (m *Machine) SetOutput(w io.Writer) { m.Out = flushio.NewWriteFlusher(w) }

// SetBlocks installs the block-storage collaborator LOAD/THRU draw on
// draw on. A Machine with no Blocks installed rejects both
// words with ErrNoBlockStore rather than panicking.
func (m *Machine) SetBlocks(s *block.Store) { m.Blocks = s }

// DataPush/DataPop satisfy dict.Invoker, letting primitives registered as
// Body.Primitive operate on the data stack without the dict package needing
// to import interp.
func (m *Machine) DataPush(v cell.Cell) error { return m.Data.Push(v) }
func (m *Machine) DataPop() (cell.Cell, error) { return m.Data.Pop() }

// resolve looks a word up, preferring the hot-words cache and falling back
// to the full dictionary chain on a miss or a stale/mismatched hit — the
// cache is never a source of incorrect results, only of slow ones.
func (m *Machine) resolve(name string) *dict.Entry {
	if e, ok := m.Cache.Lookup(name); ok {
		m.Metrics.RecordHit()
		return e
	}
	m.Metrics.RecordMiss()
	e := m.Dict.Lookup(name)
	return e
}

// touchAndRecord applies the per-entry heat touch, records the dispatch in
// the rolling window, and opportunistically offers the entry to the
// hot-words cache — the three observability side effects
// every single word dispatch carries, regardless of whether it is reached
// by the inner interpreter's Step or the outer interpreter calling directly.
func (m *Machine) touchAndRecord(e *dict.Entry) {
	e.Physics.Touch(m.NowNs(), m.Slope.DecaySlope())
	m.Window.Record(e.WordID)
	m.Cache.Consider(e, promoteHeat)
}

// dispatch runs one execution token reached from inside the inner
// interpreter's Step loop: either calls its Go primitive synchronously, or
// pushes IP and jumps into its colon body so the next Step continues inside
// it.
func (m *Machine) dispatch(e *dict.Entry) error {
	m.touchAndRecord(e)
	if e.Body.Primitive != nil {
		return e.Body.Primitive(m)
	}
	if err := m.Return.Push(cell.Cell(m.IP)); err != nil {
		return vm.Error{Kind: vm.KindStackOverflow, Word: e.Name}
	}
	m.IP = e.Body.BodyAddr
	return nil
}

// RunEntry executes e to completion as a single outer-interpreter action:
// a primitive runs once; a colon word runs via Execute until its own body
// unwinds. This is what the outer interpreter calls for both
// interpreted words and immediate words encountered while compiling.
func (m *Machine) RunEntry(e *dict.Entry) error {
	m.touchAndRecord(e)
	if e.Body.Primitive != nil {
		return e.Body.Primitive(m)
	}
	return m.Execute(e.Body.BodyAddr)
}

// promoteHeat is the hot-words cache promotion threshold: entries
// crossing it are opportunistically considered for residency on every
// dispatch, ahead of the heartbeat's own periodic rebuild.
var promoteHeat = fixedpoint.FromUint(5)

// Step executes exactly one cell at IP: a literal, a control opcode, or an
// execution token: the inner interpreter decodes and dispatches one cell
// per step. Returns false once EXIT has unwound the outermost call
// (the return stack was already empty), the outer interpreter's signal to
// stop running and read another word.
func (m *Machine) Step() (bool, error) {
	c, err := m.Arena.LoadCell(m.IP)
	if err != nil {
		return false, err
	}
	m.IP += cell.Size

	if op, ok := asOpcode(c); ok {
		return m.stepOpcode(op)
	}

	e := m.Dict.ByID(uint32(c))
	if e == nil {
		return false, vm.Error{Kind: vm.KindUnknownWord, Word: fmt.Sprintf("wordid:%d", c)}
	}
	if err := m.dispatch(e); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Machine) stepOpcode(op opcode) (bool, error) {
	switch op {
	case opLit:
		v, err := m.Arena.LoadCell(m.IP)
		if err != nil {
			return false, err
		}
		m.IP += cell.Size
		if err := m.Data.Push(v); err != nil {
			return false, vm.Error{Kind: vm.KindStackOverflow}
		}
		return true, nil

	case opBranch:
		target, err := m.Arena.LoadCell(m.IP)
		if err != nil {
			return false, err
		}
		m.IP = cell.Addr(target)
		return true, nil

	case opZBranch:
		target, err := m.Arena.LoadCell(m.IP)
		if err != nil {
			return false, err
		}
		m.IP += cell.Size
		flag, err := m.Data.Pop()
		if err != nil {
			return false, vm.Error{Kind: vm.KindStackUnderflow}
		}
		if flag == 0 {
			m.IP = cell.Addr(target)
		}
		return true, nil

	case opPDo, opPQDo:
		return m.stepDo(op == opPQDo)

	case opPLoop:
		return m.stepLoop(1)

	case opPPLoop:
		return m.stepPlusLoop()

	case opExit:
		addr, err := m.Return.Pop()
		if err != nil {
			// No frame left to return to: the outermost body has run to
			// completion rather than hit a genuine stack error.
			return false, nil
		}
		m.IP = cell.Addr(addr)
		return true, nil

	default:
		return false, vm.Error{Kind: vm.KindControlFlowMismatch}
	}
}

// stepDo implements (DO)/(?DO): pop limit and start, push them onto the
// return stack (index on top, limit beneath) so
// nested loops compose naturally with EXIT's own return-address frames.
// (?DO) is followed by one operand cell holding the address past the loop:
// when start == limit stepDo jumps there without pushing a frame; otherwise
// it steps IP over that operand and enters the loop.
func (m *Machine) stepDo(conditional bool) (bool, error) {
	start, err := m.Data.Pop()
	if err != nil {
		return false, vm.Error{Kind: vm.KindStackUnderflow}
	}
	limit, err := m.Data.Pop()
	if err != nil {
		return false, vm.Error{Kind: vm.KindStackUnderflow}
	}
	if conditional && start == limit {
		target, lerr := m.Arena.LoadCell(m.IP)
		if lerr != nil {
			return false, lerr
		}
		m.IP = cell.Addr(target)
		return true, nil
	}
	if err := m.Return.Push(limit); err != nil {
		return false, vm.Error{Kind: vm.KindStackOverflow}
	}
	if err := m.Return.Push(start); err != nil {
		return false, vm.Error{Kind: vm.KindStackOverflow}
	}
	if conditional {
		m.IP += cell.Size // skip the (?DO) skip-target operand on the taken path
	}
	return true, nil
}

func (m *Machine) stepLoop(step cell.Cell) (bool, error) {
	target, err := m.Arena.LoadCell(m.IP)
	if err != nil {
		return false, err
	}
	m.IP += cell.Size

	index, err := m.Return.Pop()
	if err != nil {
		return false, vm.Error{Kind: vm.KindStackUnderflow}
	}
	limit, err := m.Return.Pop()
	if err != nil {
		return false, vm.Error{Kind: vm.KindStackUnderflow}
	}
	index += step
	crossed := step > 0 && index >= limit || step < 0 && index <= limit
	if !crossed {
		if err := m.Return.Push(limit); err != nil {
			return false, vm.Error{Kind: vm.KindStackOverflow}
		}
		if err := m.Return.Push(index); err != nil {
			return false, vm.Error{Kind: vm.KindStackOverflow}
		}
		m.IP = cell.Addr(target)
	}
	return true, nil
}

// stepPlusLoop implements (+LOOP): pops the step from the data stack rather
// than assuming 1: +LOOP takes an arbitrary signed increment.
func (m *Machine) stepPlusLoop() (bool, error) {
	step, err := m.Data.Pop()
	if err != nil {
		return false, vm.Error{Kind: vm.KindStackUnderflow}
	}
	return m.stepLoop(step)
}

// Execute runs the colon body at addr to completion: pushes the current IP
// as a sentinel return frame, jumps to addr, and steps until that frame
// (or an unbalanced EXIT below it) unwinds back off the return stack. The
// outer interpreter executes one word at a time by giving the inner
// interpreter a body and running it to exhaustion. Nested calls push and
// pop their own frames the same way dispatch does for a direct colon-word
// invocation; Execute just gives the outer interpreter an unambiguous point
// to stop at.
func (m *Machine) Execute(addr cell.Addr) error {
	baseDepth := m.Return.Len()
	prevIP := m.IP
	if err := m.Return.Push(cell.Cell(prevIP)); err != nil {
		return vm.Error{Kind: vm.KindStackOverflow}
	}
	m.IP = addr
	for {
		more, err := m.Step()
		if err != nil {
			m.IP = prevIP
			return err
		}
		if !more || m.Return.Len() <= baseDepth {
			break
		}
	}
	m.IP = prevIP
	return nil
}
