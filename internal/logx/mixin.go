package logx

import (
	"fmt"
	"strings"
)

// Mixin is embedded by components that want width-padded, mark-prefixed
// trace lines gated on whether a log function is installed at all (the
// hot path pays nothing when LogFn is nil). The interpreter Machine embeds
// one (the engine logs recovered panics through it); the heartbeat embeds
// one for its cycle trace.
type Mixin struct {
	LogFn func(mess string, args ...interface{})

	markWidth int
	funcWidth int
	codeWidth int
}

// WithPrefix temporarily prefixes every message logged through Logf with
// prefix, returning a function that restores the previous LogFn.
func (m *Mixin) WithPrefix(prefix string) func() {
	logfn := m.LogFn
	m.LogFn = func(mess string, args ...interface{}) {
		logfn(prefix+mess, args...)
	}
	return func() {
		m.LogFn = logfn
	}
}

// Logf logs a mark-prefixed, width-padded trace line. A no-op when LogFn is
// nil, so callers can unconditionally call it on every hot-path step.
func (m *Mixin) Logf(mark, mess string, args ...interface{}) {
	if m.LogFn == nil {
		return
	}
	if n := m.markWidth - len(mark); n > 0 {
		for _, r := range mark {
			mark = strings.Repeat(string(r), n) + mark
			break
		}
	} else if n < 0 {
		m.markWidth = len(mark)
	}
	if len(args) > 0 {
		mess = fmt.Sprintf(mess, args...)
	}
	m.LogFn("%v %v", mark, mess)
}

// TrackFuncWidth/TrackCodeWidth track the widest function/opcode name seen
// so far, for column alignment.
func (m *Mixin) TrackFuncWidth(name string) int {
	if m.funcWidth < len(name) {
		m.funcWidth = len(name)
	}
	return m.funcWidth
}

func (m *Mixin) TrackCodeWidth(name string) int {
	if m.codeWidth < len(name) {
		m.codeWidth = len(name)
	}
	return m.codeWidth
}
