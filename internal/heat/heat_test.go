package heat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/fixedpoint"
	"github.com/starforth/starforth/internal/heat"
)

func TestTouchAccumulates(t *testing.T) {
	var p heat.Physics
	p.Touch(1000, 0)
	require.Equal(t, heat.Unit, p.Heat, "first touch adds exactly one unit")
	require.Equal(t, int64(1000), p.LastActiveNs)

	p.Touch(2000, 0)
	require.Equal(t, heat.Unit.Add(heat.Unit), p.Heat, "second touch with zero slope adds another unit, no decay")
}

func TestDecayReducesHeat(t *testing.T) {
	var p heat.Physics
	p.Touch(0, 0)
	require.Equal(t, heat.Unit, p.Heat)

	slope := fixedpoint.FromUint(1) // 1 heat unit per nanosecond, exaggerated for a deterministic test
	got := p.Decay(1, slope)
	require.True(t, got.Cmp(heat.Unit) < 0, "heat must drop after decay with a nonzero slope and elapsed time")
}

func TestFrozenNeitherAccumulatesNorDecays(t *testing.T) {
	var p heat.Physics
	p.Touch(0, 0)
	p.SetFrozen(true)
	before := p.Heat

	p.Touch(1000, fixedpoint.FromUint(1))
	require.Equal(t, before, p.Heat, "a frozen entry must not accumulate on Touch")

	got := p.Decay(2000, fixedpoint.FromUint(1))
	require.Equal(t, before, got, "a frozen entry must not decay")
}

func TestPinnedSkipsDecayButAdvancesTimestamp(t *testing.T) {
	var p heat.Physics
	p.Touch(0, 0)
	p.SetPinned(true)
	before := p.Heat

	got := p.Decay(5000, fixedpoint.FromUint(1))
	require.Equal(t, before, got, "a pinned entry must not decay")
	require.Equal(t, int64(5000), p.LastDecayNs, "LastDecayNs must still advance so a later unpin doesn't back-date decay")
}

func TestPinnedFrozenFlagsIndependent(t *testing.T) {
	var p heat.Physics
	require.False(t, p.Pinned())
	require.False(t, p.Frozen())

	p.SetPinned(true)
	require.True(t, p.Pinned())
	require.False(t, p.Frozen())

	p.SetFrozen(true)
	require.True(t, p.Pinned())
	require.True(t, p.Frozen())

	p.SetPinned(false)
	require.False(t, p.Pinned())
	require.True(t, p.Frozen())
}
