package heartbeat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/dict"
	"github.com/starforth/starforth/internal/heartbeat"
	"github.com/starforth/starforth/internal/hotcache"
	"github.com/starforth/starforth/internal/window"
)

func newFixture(t *testing.T) (*heartbeat.Heartbeat, *dict.Dictionary, *window.Window) {
	t.Helper()
	d := dict.New(0)
	w := window.New(1, 1)
	c := hotcache.New(8)
	m := &heartbeat.PipelineMetrics{}
	h := heartbeat.New(heartbeat.DefaultConfig(), w, c, d, m)
	return h, d, w
}

func defineAndTouch(d *dict.Dictionary, name string, touches int) *dict.Entry {
	e, _ := d.Define(name, dict.Body{}, 0)
	for i := 0; i < touches; i++ {
		e.Physics.Touch(int64(i+1)*int64(time.Millisecond), 0)
	}
	return e
}

func TestCyclePublishesSnapshot(t *testing.T) {
	h, d, w := newFixture(t)
	e := defineAndTouch(d, "DUP", 5)
	w.Record(e.WordID)

	_, ok := h.Snapshot()
	require.False(t, ok, "no snapshot published before the first Cycle")

	h.Cycle(1)
	snap, ok := h.Snapshot()
	require.True(t, ok)
	require.Equal(t, uint64(1), snap.PublishedTick)
	require.Equal(t, []uint32{e.WordID}, snap.WordIDs)
}

func TestCycleIgnoresStaleWordIDs(t *testing.T) {
	h, _, w := newFixture(t)
	w.Record(9999) // no dictionary entry ever had this id

	h.Cycle(1)
	snap, ok := h.Snapshot()
	require.True(t, ok)
	require.Zero(t, snap.TotalHeat, "an unresolvable word-id must be skipped, not crash the cycle")
}

func TestTickOnlyChecksEveryNthCall(t *testing.T) {
	d := dict.New(0)
	w := window.New(16, 16)
	c := hotcache.New(8)
	m := &heartbeat.PipelineMetrics{}
	cfg := heartbeat.DefaultConfig()
	cfg.TicksPerCheck = 4
	h := heartbeat.New(cfg, w, c, d, m)

	for i := 0; i < 3; i++ {
		h.Tick(int64(i))
		_, ok := h.Snapshot()
		require.False(t, ok, "a cycle must not run before TicksPerCheck calls have accumulated")
	}
	h.Tick(int64(3))
	_, ok := h.Snapshot()
	require.True(t, ok, "the 4th Tick call must trigger the first cycle")
}

func TestDecaySlopeDefaultIsNonZero(t *testing.T) {
	h, _, _ := newFixture(t)
	require.NotZero(t, h.DecaySlope())
}

func TestSetDecaySlopeOverridesDefault(t *testing.T) {
	h, _, _ := newFixture(t)
	h.SetDecaySlope(42)
	require.Equal(t, uint64(42), uint64(h.DecaySlope()))
}

func TestStartStopAsyncWorker(t *testing.T) {
	h, d, w := newFixture(t)
	e := defineAndTouch(d, "DUP", 1)
	w.Record(e.WordID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.Start(ctx)

	require.Eventually(t, func() bool {
		_, ok := h.Snapshot()
		return ok
	}, time.Second, time.Millisecond, "the async worker must publish at least one snapshot")

	require.NoError(t, h.Stop())
}
