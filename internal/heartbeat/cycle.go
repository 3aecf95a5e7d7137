package heartbeat

import (
	"fmt"
	"sort"

	"github.com/starforth/starforth/internal/dict"
	"github.com/starforth/starforth/internal/fixedpoint"
	"github.com/starforth/starforth/internal/window"
)

func formatPanic(v interface{}) string { return fmt.Sprintf("heartbeat worker panicked: %v", v) }

// varianceTolerance is the ANOVA early-exit tolerance band: if the current
// cycle's heat variance is within this fraction of the average of the
// prior two, the workload is judged steady and tuning is skipped. This is a
// workload-tuned constant, not a fixed requirement.
const varianceTolerance = 0.12

// trustFloor is the minimum trust score (1/(1+RMSE), with the RMSE taken via
// fixedpoint.SqrtApprox) the decay-slope fit must clear before the new slope
// is adopted; below it, the previous cycle's slope is kept.
var trustFloor = fixedpoint.FromUint(1).Div(fixedpoint.FromUint(2)) // 0.5

// rebuildNumer/rebuildDenom is the threshold, kept as an integer ratio
// (1/2) rather than a float so the inference engine never touches runtime
// float64 arithmetic: rebuild the cache once at least half of residents have
// fallen below the new 75th percentile. stale*rebuildDenom >= resident*rebuildNumer
// is the cross-multiplied form of stale/resident >= rebuildNumer/rebuildDenom.
const (
	rebuildNumer = 1
	rebuildDenom = 2
)

// freezeAfterCycles is how many consecutive heartbeat cycles an entry must
// stay above the hot cutoff before PINNED is promoted to FROZEN.
const freezeAfterCycles = 5

// historyDepth is how many heat samples the decay-slope fit looks back
// across.
const historyDepth = 8

// Cycle runs one heartbeat pass: snapshot capture, ANOVA early-exit,
// window tuning, decay-slope inference, cache reorganization — in that
// order. Safe to call directly in tests without going through Tick/Start.
func (h *Heartbeat) Cycle(nowNs int64) {
	h.tickNum++
	wordIDs := h.window.CopyInto(nil)

	entries := h.resolveEntries(wordIDs, nowNs)
	totalHeat, hotCount, staleCount := h.summarize(entries)
	h.promoteDemote(entries)

	h.heatHist = append(h.heatHist, heatSample{ns: nowNs, totalHeat: totalHeat})
	if len(h.heatHist) > historyDepth {
		h.heatHist = h.heatHist[len(h.heatHist)-historyDepth:]
	}

	variance := h.varianceOfHeat(entries)
	h.varianceHist[h.tickNum%3] = variance
	steady := h.anovaSteady(variance)

	if !steady {
		h.tuneWindowWidth()
		h.inferDecaySlope()
		h.reorganizeCache(entries)
	}

	snap := window.Snapshot{
		PublishedTick:  h.tickNum,
		PublishedNs:    nowNs,
		WindowWidth:    h.window.EffectiveWidth(),
		DecaySlopeQ48:  uint64(h.DecaySlope()),
		HotWordCount:   hotCount,
		StaleWordCount: staleCount,
		TotalHeat:      totalHeat,
		WordIDs:        wordIDs,
	}
	h.pub.Publish(snap)
	h.Logf("@", "cycle %d steady=%v width=%d slope=%d hot=%d stale=%d",
		h.tickNum, steady, snap.WindowWidth, snap.DecaySlopeQ48, hotCount, staleCount)
}

func (h *Heartbeat) resolveEntries(wordIDs []uint32, nowNs int64) []*dict.Entry {
	seen := make(map[uint32]bool, len(wordIDs))
	out := make([]*dict.Entry, 0, len(wordIDs))
	for _, id := range wordIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e := h.sampler.ByID(id); e != nil {
			e.Physics.Decay(nowNs, h.DecaySlope())
			out = append(out, e)
		}
	}
	return out
}

func (h *Heartbeat) summarize(entries []*dict.Entry) (totalHeat uint64, hotCount, staleCount int) {
	cutoff := h.percentile(entries, 75)
	staleCutoff := h.percentile(entries, 25)
	for _, e := range entries {
		totalHeat += e.Physics.Heat.ToUint()
		if e.Physics.Heat.Cmp(cutoff) >= 0 {
			hotCount++
		}
		if e.Physics.Heat.Cmp(staleCutoff) < 0 {
			staleCount++
		}
	}
	return totalHeat, hotCount, staleCount
}

// promoteDemote applies the physics-state half of heat-model bookkeeping:
// an entry crossing the 75th-percentile hot cutoff gets PINNED; one that
// stays pinned for freezeAfterCycles consecutive cycles gets promoted to
// FROZEN instead. An entry falling below the 25th-percentile stale cutoff
// loses PINNED (FROZEN entries are never automatically thawed). This is
// distinct from the hot-words cache's own residency promotion/demotion in
// reorganizeCache below — that decides cache membership, this decides the
// per-entry heat state flags.
func (h *Heartbeat) promoteDemote(entries []*dict.Entry) {
	hotCutoff := h.percentile(entries, 75)
	coldCutoff := h.percentile(entries, 25)
	seen := make(map[uint32]bool, len(entries))
	for _, e := range entries {
		seen[e.WordID] = true
		hot := e.Physics.Heat.Cmp(hotCutoff) >= 0
		if !hot {
			h.pinStreak[e.WordID] = 0
			if e.Physics.Heat.Cmp(coldCutoff) < 0 && !e.Physics.Frozen() {
				e.Physics.SetPinned(false)
			}
			continue
		}
		if e.Physics.Frozen() {
			continue
		}
		h.pinStreak[e.WordID]++
		if h.pinStreak[e.WordID] >= freezeAfterCycles {
			e.Physics.SetPinned(false)
			e.Physics.SetFrozen(true)
		} else {
			e.Physics.SetPinned(true)
		}
	}
	for id := range h.pinStreak {
		if !seen[id] {
			delete(h.pinStreak, id)
		}
	}
}

// percentile returns the p-th percentile (0-100) of heat across entries,
// recomputed from the published window snapshot rather than per-touch.
func (h *Heartbeat) percentile(entries []*dict.Entry, p int) fixedpoint.Q48_16 {
	if len(entries) == 0 {
		return 0
	}
	heats := make([]fixedpoint.Q48_16, len(entries))
	for i, e := range entries {
		heats[i] = e.Physics.Heat
	}
	sort.Slice(heats, func(i, j int) bool { return heats[i] < heats[j] })
	idx := (p * (len(heats) - 1)) / 100
	return heats[idx]
}

func (h *Heartbeat) varianceOfHeat(entries []*dict.Entry) fixedpoint.Q48_16 {
	if len(entries) == 0 {
		return 0
	}
	var sum uint64
	for _, e := range entries {
		sum += e.Physics.Heat.ToUint()
	}
	mean := sum / uint64(len(entries))
	var sq uint64
	for _, e := range entries {
		d := e.Physics.Heat.ToUint()
		var diff uint64
		if d > mean {
			diff = d - mean
		} else {
			diff = mean - d
		}
		sq += diff * diff
	}
	return fixedpoint.FromUint(sq / uint64(len(entries)))
}

// anovaSteady compares the current variance against the mean of the prior
// two cycles' variance; within varianceTolerance is judged steady.
func (h *Heartbeat) anovaSteady(variance fixedpoint.Q48_16) bool {
	if h.tickNum < 3 {
		return false
	}
	var prevSum fixedpoint.Q48_16
	n := 0
	for i, v := range h.varianceHist {
		if uint64(i) == h.tickNum%3 {
			continue
		}
		prevSum = prevSum.Add(v)
		n++
	}
	if n == 0 {
		return false
	}
	avgPrev := prevSum.Div(fixedpoint.FromUint(uint64(n)))
	if avgPrev == 0 {
		return variance == 0
	}
	tolerance := fixedpoint.FromUint(uint64(varianceTolerance * 100)).Div(fixedpoint.FromUint(100))
	diff := variance.Sub(avgPrev)
	if variance < avgPrev {
		diff = avgPrev.Sub(variance)
	}
	ratio := diff.Div(avgPrev)
	return ratio.Cmp(tolerance) <= 0
}
