package heartbeat

import (
	"sync/atomic"

	"github.com/starforth/starforth/internal/dict"
	"github.com/starforth/starforth/internal/fixedpoint"
)

// tuneWindowWidth binary-chops the effective window
// width against speculative-prefetch accuracy. If accuracy improved since
// the last check, keep stepping in the same direction (widen further if
// widening helped); otherwise reverse and halve the step, converging like a
// binary search rather than a fixed increment.
func (h *Heartbeat) tuneWindowWidth() {
	acc := h.metrics.Accuracy()
	defer h.metrics.Reset()

	cur := h.window.EffectiveWidth()
	if h.effAccuracy == 0 {
		// first observation: no direction signal yet, just record it.
		h.effAccuracy = acc
		return
	}

	improved := acc.Cmp(h.effAccuracy) > 0
	if !improved {
		h.widthStep = -h.widthStep / 2
		if h.widthStep == 0 {
			h.widthStep = 1
		}
	}

	next := cur + h.widthStep
	if next < h.cfg.MinWindow {
		next = h.cfg.MinWindow
		h.widthStep = -h.widthStep
	}
	if next > h.maxWindow {
		next = h.maxWindow
		h.widthStep = -h.widthStep
	}
	h.window.SetEffectiveWidth(next)
	h.effAccuracy = acc
}

// inferDecaySlope fits an exponential decay model to the recent total-heat
// history and updates the live decay slope if the fit's trust score clears
// trustFloor. The per-entry decay formula (heat -= elapsed*slope) is
// linear, not exponential (see the design ledger's rationale), so the fit
// here estimates slope from the log-ratio of consecutive totals — the
// discrete-time analogue of an exponential rate that degenerates correctly
// to the linear update at small elapsed/heat ratios.
func (h *Heartbeat) inferDecaySlope() {
	if len(h.heatHist) < 2 {
		return
	}

	var slopeSum fixedpoint.Q48_16
	var sqErrSum fixedpoint.Q48_16
	samples := 0

	for i := 1; i < len(h.heatHist); i++ {
		prev, cur := h.heatHist[i-1], h.heatHist[i]
		elapsed := cur.ns - prev.ns
		if elapsed <= 0 || prev.totalHeat == 0 || cur.totalHeat == 0 {
			continue
		}
		prevQ := fixedpoint.FromUint(prev.totalHeat)
		curQ := fixedpoint.FromUint(cur.totalHeat)

		// slope estimate: |log(prev) - log(cur)| / elapsed, the per-ns rate
		// that would explain the observed drop under exponential decay.
		lp, lc := fixedpoint.LogApprox(prevQ), fixedpoint.LogApprox(curQ)
		var logDiff fixedpoint.Q48_16
		if lp.Cmp(lc) > 0 {
			logDiff = lp.Sub(lc)
		} else {
			logDiff = lc.Sub(lp)
		}
		slope := logDiff.Div(fixedpoint.FromUint(uint64(elapsed)))
		slopeSum = slopeSum.Add(slope)
		samples++
	}

	if samples == 0 {
		return
	}
	avgSlope := slopeSum.Div(fixedpoint.FromUint(uint64(samples)))

	for i := 1; i < len(h.heatHist); i++ {
		prev, cur := h.heatHist[i-1], h.heatHist[i]
		elapsed := cur.ns - prev.ns
		if elapsed <= 0 || prev.totalHeat == 0 {
			continue
		}
		predictedDrop := fixedpoint.FromUint(uint64(elapsed)).Mul(avgSlope).Mul(fixedpoint.FromUint(prev.totalHeat))
		actualDrop := fixedpoint.FromUint(prev.totalHeat).Sub(fixedpoint.FromUint(cur.totalHeat))
		var err fixedpoint.Q48_16
		if predictedDrop.Cmp(actualDrop) > 0 {
			err = predictedDrop.Sub(actualDrop)
		} else {
			err = actualDrop.Sub(predictedDrop)
		}
		sqErrSum = sqErrSum.Add(err.Mul(err))
	}

	// trust score: an inverse-RMSE-flavored value in [0,1], approximated via
	// SqrtApprox rather than a true R^2; nothing pins this to one
	// statistical definition.
	rmse := fixedpoint.SqrtApprox(sqErrSum.Div(fixedpoint.FromUint(uint64(samples))))
	trust := fixedpoint.FromUint(1).Div(fixedpoint.FromUint(1).Add(rmse))
	if trust.Cmp(trustFloor) < 0 {
		return
	}

	h.tuningLock.Lock()
	atomic.StoreUint64(&h.decaySlope, uint64(avgSlope))
	h.tuningLock.Unlock()
}

// reorganizeCache recomputes the 75th-percentile heat
// cutoff over sampled entries and rebuild the hot-words cache once enough
// residents have fallen below it.
func (h *Heartbeat) reorganizeCache(entries []*dict.Entry) {
	if len(entries) == 0 {
		return
	}
	cutoff := h.percentile(entries, 75)
	resident := h.cache.ResidentCount()
	if resident == 0 {
		h.cache.Rebuild(entries, cutoff)
		return
	}
	stale := h.cache.StaleBelow(cutoff)
	if stale*rebuildDenom >= resident*rebuildNumer {
		h.cache.Rebuild(entries, cutoff)
	}
	for _, e := range entries {
		h.cache.Demote(e, h.cfg.DemoteBelow)
	}
}
