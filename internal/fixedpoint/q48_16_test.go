package fixedpoint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/fixedpoint"
)

func TestFromUintToUint(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1 << 40} {
		q := fixedpoint.FromUint(v)
		require.Equal(t, v, q.ToUint(), "round-trip of %d", v)
	}
}

func TestAddSubSaturation(t *testing.T) {
	one := fixedpoint.FromUint(1)
	max := fixedpoint.Q48_16(^uint64(0))

	require.Equal(t, max, max.Add(one), "Add must saturate at max rather than wrap")
	require.Equal(t, fixedpoint.Q48_16(0), fixedpoint.Q48_16(0).Sub(one), "Sub must saturate at zero rather than wrap")

	five := fixedpoint.FromUint(5)
	three := fixedpoint.FromUint(3)
	require.Equal(t, fixedpoint.FromUint(8), five.Add(three))
	require.Equal(t, fixedpoint.FromUint(2), five.Sub(three))
}

func TestMulDiv(t *testing.T) {
	two := fixedpoint.FromUint(2)
	three := fixedpoint.FromUint(3)
	require.Equal(t, fixedpoint.FromUint(6), two.Mul(three))

	six := fixedpoint.FromUint(6)
	require.Equal(t, two, six.Div(three))

	require.Equal(t, fixedpoint.Q48_16(0), two.Div(fixedpoint.Q48_16(0)), "Div by zero returns zero instead of panicking")
}

func TestCmp(t *testing.T) {
	one := fixedpoint.FromUint(1)
	two := fixedpoint.FromUint(2)
	require.Equal(t, -1, one.Cmp(two))
	require.Equal(t, 1, two.Cmp(one))
	require.Equal(t, 0, one.Cmp(fixedpoint.FromUint(1)))
}

func TestSqrtApprox(t *testing.T) {
	for _, tc := range []struct {
		in   uint64
		want uint64
	}{
		{0, 0},
		{4, 2},
		{9, 3},
		{16, 4},
		{100, 10},
	} {
		got := fixedpoint.SqrtApprox(fixedpoint.FromUint(tc.in)).ToUint()
		require.InDeltaf(t, float64(tc.want), float64(got), 1, "sqrt(%d)", tc.in)
	}
}

func TestLogApproxMonotonic(t *testing.T) {
	prev := fixedpoint.LogApprox(fixedpoint.FromUint(1))
	for _, v := range []uint64{2, 4, 8, 16, 1000} {
		cur := fixedpoint.LogApprox(fixedpoint.FromUint(v))
		require.GreaterOrEqual(t, cur.Cmp(prev), 0, "log must be non-decreasing as input grows (at %d)", v)
		prev = cur
	}
}
