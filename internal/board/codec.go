package board

// FeatureSize is the width of the dual-perspective encoding:
// 64 own-occupancy inputs followed by 64 opponent-occupancy inputs.
const FeatureSize = 2 * SquareCount

// Encode converts a position into its dual-perspective feature vector.
// Overlapping bits are not rejected here: such a cell is set in both halves.
func Encode(pos Position) []float64 {
	var v = make([]float64, FeatureSize)
	EncodeTo(v, pos)
	return v
}

func EncodeTo(dst []float64, pos Position) {
	_ = dst[FeatureSize-1]
	for i := 0; i < SquareCount; i++ {
		dst[i] = float64(pos.Own >> uint(i) & 1)
		dst[SquareCount+i] = float64(pos.Opponent >> uint(i) & 1)
	}
}

// Decode is the inverse of Encode. Values above 0.5 count as occupied.
func Decode(v []float64) Position {
	var pos Position
	for i := 0; i < SquareCount; i++ {
		if v[i] > 0.5 {
			pos.Own |= 1 << uint(i)
		}
		if v[SquareCount+i] > 0.5 {
			pos.Opponent |= 1 << uint(i)
		}
	}
	return pos
}
