package heartbeat

import (
	"sync/atomic"

	"github.com/starforth/starforth/internal/fixedpoint"
)

// PipelineMetrics accumulates hot-words-cache hit/attempt counts: the
// speculative-prefetch accuracy input to window-width tuning. Incremented
// on the interpreter's hot path, read only by the heartbeat — both sides
// use atomics so neither blocks the other.
type PipelineMetrics struct {
	hits     uint64
	attempts uint64
}

// RecordHit/RecordMiss are called by the dictionary-lookup strategy
// selector after every cache-assisted lookup attempt.
func (m *PipelineMetrics) RecordHit()  { atomic.AddUint64(&m.attempts, 1); atomic.AddUint64(&m.hits, 1) }
func (m *PipelineMetrics) RecordMiss() { atomic.AddUint64(&m.attempts, 1) }

// Accuracy returns hits/attempts in Q48.16, or zero if no attempts yet.
func (m *PipelineMetrics) Accuracy() fixedpoint.Q48_16 {
	attempts := atomic.LoadUint64(&m.attempts)
	if attempts == 0 {
		return 0
	}
	hits := atomic.LoadUint64(&m.hits)
	return fixedpoint.FromUint(hits).Div(fixedpoint.FromUint(attempts))
}

// Reset zeroes the counters, called at the start of each accuracy-sampling
// interval so each cycle's accuracy reflects recent behavior rather than a
// lifetime average.
func (m *PipelineMetrics) Reset() {
	atomic.StoreUint64(&m.hits, 0)
	atomic.StoreUint64(&m.attempts, 0)
}
