package board

import "math/bits"

func firstOne(b uint64) int {
	return bits.TrailingZeros64(b)
}
