package lockup

import (
	"math"
	"math/bits"

	"github.com/holiman/uint256"
)

// mulDiv returns floor(amount * num / den) computed in 256 bits.
// amount < 2^128 and num < 2^64, so the product never overflows.
// den must be non-zero.
func mulDiv(amount *uint256.Int, num, den uint64) uint256.Int {
	var z uint256.Int
	z.Mul(amount, uint256.NewInt(num))
	z.Div(&z, uint256.NewInt(den))
	return z
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func saturatingSub(a, b *uint256.Int) uint256.Int {
	var z uint256.Int
	if a.Lt(b) {
		return z
	}
	z.Sub(a, b)
	return z
}
