package interp

import (
	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/vm"
)

// maxControlDepth bounds the nesting of IF/BEGIN/DO constructs a single
// colon definition may have open at once: a fixed, small control-flow
// stack — 64 frames is ample for any hand-written definition.
const maxControlDepth = 64

type cfKind int

const (
	cfIf cfKind = iota
	cfElse
	cfBegin
	cfWhile
	cfDo
)

// cfFrame is one open control-flow construct. addr is the backpatch target
// for IF/ELSE/WHILE (the operand cell of a compiled branch) or the loop-start
// address for BEGIN/DO. skipAddr is only used by ?DO, which also compiles a
// forward branch (skip the body if start==limit) that LOOP/+LOOP must
// backpatch. leaveSites collects every LEAVE compiled inside a DO...LOOP,
// patched to fall through to just past the loop once it closes.
type cfFrame struct {
	kind       cfKind
	addr       cell.Addr
	skipAddr   cell.Addr
	hasSkip    bool
	leaveSites []cell.Addr
}

type controlFlow struct {
	frames []cfFrame
}

func (cf *controlFlow) init() { cf.frames = cf.frames[:0] }

func (cf *controlFlow) push(f cfFrame) error {
	if len(cf.frames) >= maxControlDepth {
		return vm.Error{Kind: vm.KindControlFlowMismatch, Word: "control-flow stack full"}
	}
	cf.frames = append(cf.frames, f)
	return nil
}

func (cf *controlFlow) pop(want cfKind) (cfFrame, error) {
	if len(cf.frames) == 0 {
		return cfFrame{}, vm.Error{Kind: vm.KindControlFlowMismatch}
	}
	f := cf.frames[len(cf.frames)-1]
	if f.kind != want {
		return cfFrame{}, vm.Error{Kind: vm.KindControlFlowMismatch}
	}
	cf.frames = cf.frames[:len(cf.frames)-1]
	return f, nil
}

// popAny pops whatever sits on top, used where THEN legally closes either an
// IF or an ELSE frame.
func (cf *controlFlow) popAny(wantA, wantB cfKind) (cfFrame, error) {
	if len(cf.frames) == 0 {
		return cfFrame{}, vm.Error{Kind: vm.KindControlFlowMismatch}
	}
	f := cf.frames[len(cf.frames)-1]
	if f.kind != wantA && f.kind != wantB {
		return cfFrame{}, vm.Error{Kind: vm.KindControlFlowMismatch}
	}
	cf.frames = cf.frames[:len(cf.frames)-1]
	return f, nil
}

// topDo finds the innermost open DO frame (possibly with IF/BEGIN frames
// opened inside it still on top), for LEAVE to register against, without
// disturbing the stack.
func (cf *controlFlow) topDo() (int, bool) {
	for i := len(cf.frames) - 1; i >= 0; i-- {
		if cf.frames[i].kind == cfDo {
			return i, true
		}
	}
	return 0, false
}

// compileCell appends one cell to the dictionary region at HERE and
// advances it (the "," primitive builds on this directly). Every compiling
// word funnels through here, so this is the single chokepoint that keeps a
// runaway colon definition from writing past DictEnd into the block-buffer
// region.
func (m *Machine) compileCell(c cell.Cell) (cell.Addr, error) {
	addr := m.Dict.Here()
	if !m.Arena.InDictBounds(addr, cell.Size) {
		return 0, vm.DictionaryFullError(m.latestName())
	}
	if err := m.Arena.StoreCell(addr, c); err != nil {
		return 0, err
	}
	m.Dict.SetHere(addr + cell.Size)
	return addr, nil
}

func (m *Machine) patchCell(addr cell.Addr, c cell.Cell) error {
	return m.Arena.StoreCell(addr, c)
}

// doIf compiles ( flag -- ): branch past the true-branch when flag is zero.
func (m *Machine) doIf() error {
	if _, err := m.compileCell(opZBranch.cell()); err != nil {
		return err
	}
	operand, err := m.compileCell(0)
	if err != nil {
		return err
	}
	return m.cf.push(cfFrame{kind: cfIf, addr: operand})
}

func (m *Machine) doElse() error {
	ifFrame, err := m.cf.pop(cfIf)
	if err != nil {
		return err
	}
	if _, err := m.compileCell(opBranch.cell()); err != nil {
		return err
	}
	operand, err := m.compileCell(0)
	if err != nil {
		return err
	}
	if err := m.patchCell(ifFrame.addr, cell.Cell(m.Dict.Here())); err != nil {
		return err
	}
	return m.cf.push(cfFrame{kind: cfElse, addr: operand})
}

func (m *Machine) doThen() error {
	f, err := m.cf.popAny(cfIf, cfElse)
	if err != nil {
		return err
	}
	return m.patchCell(f.addr, cell.Cell(m.Dict.Here()))
}

func (m *Machine) doBegin() error {
	return m.cf.push(cfFrame{kind: cfBegin, addr: m.Dict.Here()})
}

func (m *Machine) doWhile() error {
	if _, err := m.compileCell(opZBranch.cell()); err != nil {
		return err
	}
	operand, err := m.compileCell(0)
	if err != nil {
		return err
	}
	return m.cf.push(cfFrame{kind: cfWhile, addr: operand})
}

func (m *Machine) doRepeat() error {
	whileFrame, err := m.cf.pop(cfWhile)
	if err != nil {
		return err
	}
	beginFrame, err := m.cf.pop(cfBegin)
	if err != nil {
		return err
	}
	if _, err := m.compileCell(opBranch.cell()); err != nil {
		return err
	}
	if _, err := m.compileCell(cell.Cell(beginFrame.addr)); err != nil {
		return err
	}
	return m.patchCell(whileFrame.addr, cell.Cell(m.Dict.Here()))
}

func (m *Machine) doAgain() error {
	beginFrame, err := m.cf.pop(cfBegin)
	if err != nil {
		return err
	}
	if _, err := m.compileCell(opBranch.cell()); err != nil {
		return err
	}
	_, err = m.compileCell(cell.Cell(beginFrame.addr))
	return err
}

func (m *Machine) doUntil() error {
	beginFrame, err := m.cf.pop(cfBegin)
	if err != nil {
		return err
	}
	if _, err := m.compileCell(opZBranch.cell()); err != nil {
		return err
	}
	_, err = m.compileCell(cell.Cell(beginFrame.addr))
	return err
}

func (m *Machine) doDo() error {
	if _, err := m.compileCell(opPDo.cell()); err != nil {
		return err
	}
	return m.cf.push(cfFrame{kind: cfDo, addr: m.Dict.Here()})
}

func (m *Machine) doQDo() error {
	if _, err := m.compileCell(opPQDo.cell()); err != nil {
		return err
	}
	operand, err := m.compileCell(0)
	if err != nil {
		return err
	}
	return m.cf.push(cfFrame{kind: cfDo, addr: m.Dict.Here(), skipAddr: operand, hasSkip: true})
}

func (m *Machine) closeLoop(op opcode) error {
	f, err := m.cf.pop(cfDo)
	if err != nil {
		return err
	}
	if _, err := m.compileCell(op.cell()); err != nil {
		return err
	}
	if _, err := m.compileCell(cell.Cell(f.addr)); err != nil {
		return err
	}
	end := cell.Cell(m.Dict.Here())
	if f.hasSkip {
		if err := m.patchCell(f.skipAddr, end); err != nil {
			return err
		}
	}
	for _, site := range f.leaveSites {
		if err := m.patchCell(site, end); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) doLoop() error     { return m.closeLoop(opPLoop) }
func (m *Machine) doPlusLoop() error { return m.closeLoop(opPPLoop) }

func (m *Machine) doLeave() error {
	idx, ok := m.cf.topDo()
	if !ok {
		return vm.Error{Kind: vm.KindControlFlowMismatch, Word: "LEAVE"}
	}
	if _, err := m.compileCell(opBranch.cell()); err != nil {
		return err
	}
	operand, err := m.compileCell(0)
	if err != nil {
		return err
	}
	m.cf.frames[idx].leaveSites = append(m.cf.frames[idx].leaveSites, operand)
	return nil
}
