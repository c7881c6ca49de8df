package fixedpoint

import (
	"math/big"
	"sync"
)

// Scales used across the risk engine. Prices from venues and oracles carry
// 8 decimal places; ratios (health, leverage multiples, confidence) carry 6.
const (
	PriceDecimals = 8
	PriceScale    = int64(100_000_000)

	// One is the unit value for ratio quantities: 1_000_000 == 1.0.
	One = int64(1_000_000)

	// BpsDenom converts basis points to fractions: 10_000 bps == 1.0.
	BpsDenom = int64(10_000)
)

// RoundingMode selects how MulDiv resolves a non-zero remainder.
type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // banker's rounding (default)
	RoundDown
	RoundUp
)

var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// MulDiv computes a*b/denom through a big.Int intermediate so the product
// cannot overflow int64. Evaluation order is fixed, which keeps results
// identical regardless of call-site grouping.
func MulDiv(a, b, denom int64, mode RoundingMode) int64 {
	if denom == 0 {
		panic("fixedpoint: division by zero")
	}

	num := getBig()
	num.Mul(big.NewInt(a), big.NewInt(b))
	result := divBig(num, denom, mode)
	putBig(num)
	return result
}

func divBig(numerator *big.Int, denominator int64, mode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getBig()
	remainder := getBig()

	quotient.QuoRem(numerator, denom, remainder)
	result := quotient.Int64()

	switch mode {
	case RoundHalfEven:
		rem := remainder.Int64()
		if rem < 0 {
			rem = -rem
		}
		half := denominator / 2
		if denominator < 0 {
			half = -half
		}
		if rem > half {
			result = roundAway(result, numerator.Sign() == big.NewInt(denominator).Sign())
		} else if rem == half && denominator%2 == 0 {
			if result%2 != 0 {
				result = roundAway(result, numerator.Sign() == big.NewInt(denominator).Sign())
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result = roundAway(result, numerator.Sign() == big.NewInt(denominator).Sign())
		}
	case RoundDown:
		// truncation already applied by QuoRem
	}

	putBig(quotient)
	putBig(remainder)
	return result
}

func roundAway(v int64, positive bool) int64 {
	if positive {
		return v + 1
	}
	return v - 1
}

// Mul multiplies two One-scaled ratios: Mul(1.5, 1.2) == 1.8.
func Mul(a, b int64) int64 {
	return MulDiv(a, b, One, RoundHalfEven)
}

// Div divides two One-scaled ratios.
func Div(a, b int64) int64 {
	if b == 0 {
		panic("fixedpoint: division by zero")
	}
	return MulDiv(a, One, b, RoundHalfEven)
}

// Sqrt returns the integer square root of n (Newton's method).
// Used by the borrow sizing formula's diminishing-returns divisor.
func Sqrt(n int64) int64 {
	if n < 0 {
		panic("fixedpoint: sqrt of negative value")
	}
	if n < 2 {
		return n
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// DeviationBps returns |a-b| relative to b, in basis points.
// Returns 0 when b is zero to avoid a meaningless ratio.
func DeviationBps(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return MulDiv(diff, BpsDenom, b, RoundHalfEven)
}

// ApplyBps returns amount * bps / 10_000, the common fee/reward computation.
func ApplyBps(amount, bps int64) int64 {
	return MulDiv(amount, bps, BpsDenom, RoundHalfEven)
}
