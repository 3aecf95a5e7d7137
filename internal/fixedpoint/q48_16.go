// Package fixedpoint implements the Q48.16 unsigned fixed-point helper used
// by the per-entry heat model, the hot-words cache and the heartbeat's
// inference engine. The FORTH primitives' own arithmetic never uses this
// type; it exists so heat tracking and the adaptive tuner can run without a
// floating-point unit.
package fixedpoint

import "math/bits"

// Q48_16 is an unsigned 64-bit value with an implicit binary point after bit
// 15: the low 16 bits are the fractional part, the high 48 bits are the
// integer part.
type Q48_16 uint64

const fracBits = 16

// FromUint converts a plain unsigned integer to Q48.16.
func FromUint(v uint64) Q48_16 { return Q48_16(v << fracBits) }

// ToUint truncates the fractional part and returns the integer part.
func (q Q48_16) ToUint() uint64 { return uint64(q >> fracBits) }

// Add returns q+o, saturating at the uint64 max on overflow.
func (q Q48_16) Add(o Q48_16) Q48_16 {
	sum, carry := bits.Add64(uint64(q), uint64(o), 0)
	if carry != 0 {
		return Q48_16(^uint64(0))
	}
	return Q48_16(sum)
}

// Sub returns q-o, saturating at zero on underflow.
func (q Q48_16) Sub(o Q48_16) Q48_16 {
	if o > q {
		return 0
	}
	return q - o
}

// Mul returns (q*o)>>16, saturating at the uint64 max on overflow.
func (q Q48_16) Mul(o Q48_16) Q48_16 {
	hi, lo := bits.Mul64(uint64(q), uint64(o))
	// result = (hi:lo) >> 16
	result := (hi << (64 - fracBits)) | (lo >> fracBits)
	if hi>>fracBits != 0 {
		return Q48_16(^uint64(0))
	}
	return Q48_16(result)
}

// Div returns (q<<16)/o, or zero if o is zero.
func (q Q48_16) Div(o Q48_16) Q48_16 {
	if o == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(q), 1<<fracBits)
	quo, _ := bits.Div64(hi, lo, uint64(o))
	return Q48_16(quo)
}

// Cmp returns -1, 0, or 1 as q is less than, equal to, or greater than o.
func (q Q48_16) Cmp(o Q48_16) int {
	switch {
	case q < o:
		return -1
	case q > o:
		return 1
	default:
		return 0
	}
}

// SqrtApprox returns an integer-only approximation of the square root of q,
// refined by Newton's method. Used by the inference engine to approximate
// R² trust scores.
func SqrtApprox(q Q48_16) Q48_16 {
	if q == 0 {
		return 0
	}
	// initial guess: bit-length halved gives a same-order-of-magnitude seed.
	x := Q48_16(1) << uint((bits.Len64(uint64(q))+fracBits)/2+1)
	for i := 0; i < 24; i++ {
		if x == 0 {
			break
		}
		next := (x + q.Div(x)) / 2
		if next == x {
			break
		}
		x = next
	}
	return x
}

// LogApprox returns a piecewise-linear approximation of the natural
// logarithm of q: the integer part of log2 from the bit length, plus a
// linear segment through the remainder, scaled by ln 2. There is no
// iterative refinement (kept deliberately coarse: the decay-slope fit only
// needs log ratios, not transcendental precision).
func LogApprox(q Q48_16) Q48_16 {
	if q <= FromUint(1) {
		return 0
	}
	// log2(x) ~= bit-length of the integer part, refined by one division
	// step through the fractional remainder (piecewise-linear segment).
	n := bits.Len64(q.ToUint())
	if n == 0 {
		return 0
	}
	whole := FromUint(uint64(n - 1))
	// ln(2) ~= 45426/65536 in Q48.16
	const ln2 = Q48_16(45426)
	frac := q.Div(Q48_16(1) << uint(n-1+fracBits))
	// frac is q/2^(n-1), in [1,2); (frac-1)*ln2 is a linear stand-in for
	// ln(frac), good enough for a trust-band comparison rather than exact
	// reconstruction.
	return whole.Mul(ln2).Add(frac.Sub(FromUint(1)).Mul(ln2))
}
