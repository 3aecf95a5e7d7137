// Package heat implements the per-entry execution-heat model: a Q48.16
// counter incremented on every invocation and decayed lazily —
// against wall-clock time, not a per-tick walk of the dictionary — so the
// hot path never has to visit entries it didn't touch.
package heat

import (
	"time"

	"github.com/starforth/starforth/internal/fixedpoint"
)

// Unit is the heat added per invocation: one whole unit in Q48.16.
var Unit = fixedpoint.FromUint(1)

// State flags carried alongside the heat counter in a dictionary entry's
// physics field.
type StateFlag uint8

const (
	StatePinned StateFlag = 1 << iota
	StateFrozen
)

// Physics is the per-entry heat/timing record embedded in a dictionary
// entry's physics field.
type Physics struct {
	Heat         fixedpoint.Q48_16 // execution_heat
	LastActiveNs int64
	LastDecayNs  int64
	AvgLatencyNs int64
	StateFlags   StateFlag
	MassBytes    uint32
}

// Pinned/Frozen report the corresponding state flags.
func (p *Physics) Pinned() bool { return p.StateFlags&StatePinned != 0 }
func (p *Physics) Frozen() bool { return p.StateFlags&StateFrozen != 0 }

// SetPinned/SetFrozen toggle the corresponding state flags. Setting Frozen
// also disqualifies the entry from both decay and further accumulation.
func (p *Physics) SetPinned(v bool)  { p.setFlag(StatePinned, v) }
func (p *Physics) SetFrozen(v bool)  { p.setFlag(StateFrozen, v) }
func (p *Physics) setFlag(f StateFlag, v bool) {
	if v {
		p.StateFlags |= f
	} else {
		p.StateFlags &^= f
	}
}

// Decay applies lazy time-based decay as of nowNs, using slope (heat per
// nanosecond, Q48.16), then returns the post-decay heat. Frozen entries are
// untouched; Pinned entries skip decay but their LastDecayNs is still
// advanced so a later un-pin doesn't apply a giant back-dated decay.
func (p *Physics) Decay(nowNs int64, slope fixedpoint.Q48_16) fixedpoint.Q48_16 {
	if p.Frozen() {
		return p.Heat
	}
	if p.LastDecayNs == 0 && p.Heat == 0 {
		p.LastDecayNs = nowNs
	}
	elapsed := nowNs - p.LastDecayNs
	if elapsed < 0 {
		elapsed = 0
	}
	p.LastDecayNs = nowNs
	if p.Pinned() || slope == 0 || elapsed == 0 {
		return p.Heat
	}
	drop := fixedpoint.FromUint(uint64(elapsed)).Mul(slope)
	p.Heat = p.Heat.Sub(drop)
	return p.Heat
}

// Touch applies decay as of nowNs and then adds one execution unit,
// recording nowNs as the last-active timestamp. This is the single call
// every primitive and colon-word invocation makes.
func (p *Physics) Touch(nowNs int64, slope fixedpoint.Q48_16) {
	p.Decay(nowNs, slope)
	if !p.Frozen() {
		p.Heat = p.Heat.Add(Unit)
	}
	p.LastActiveNs = nowNs
}

// NowNs is a wall-clock source in nanoseconds, held in a var so it can be
// substituted. Nothing in this module reads it: the interpreter and the
// heartbeat take their timestamps from the clock their caller supplies.
var NowNs = func() int64 { return time.Now().UnixNano() }
