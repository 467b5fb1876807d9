package board

// Transform maps every source cell to its destination cell.
type Transform [SquareCount]uint8

const (
	Identity = iota
	Rotate90
	Rotate180
	Rotate270
	FlipXAxis
	FlipYAxis
	FlipMainDiagonal
	FlipAntiDiagonal
	SymmetryCount
)

var symmetryNames = [SymmetryCount]string{
	"identity", "rotate90", "rotate180", "rotate270",
	"flipX", "flipY", "flipMainDiagonal", "flipAntiDiagonal",
}

// Symmetries is the dihedral group of the board, identity first.
// Rotations are counter-clockwise.
var Symmetries [SymmetryCount]Transform

func init() {
	var maps = [SymmetryCount]func(r, c int) int{
		func(r, c int) int { return 8*r + c },
		func(r, c int) int { return 8*(7-c) + r },
		func(r, c int) int { return 8*(7-r) + (7 - c) },
		func(r, c int) int { return 8*c + (7 - r) },
		func(r, c int) int { return 8*(7-r) + c },
		func(r, c int) int { return 8*r + (7 - c) },
		func(r, c int) int { return 8*c + r },
		func(r, c int) int { return 8*(7-c) + (7 - r) },
	}
	for k, f := range maps {
		for r := 0; r < 8; r++ {
			for c := 0; c < 8; c++ {
				Symmetries[k][8*r+c] = uint8(f(r, c))
			}
		}
	}
}

func SymmetryName(k int) string {
	return symmetryNames[k]
}

// Apply relabels every 64-cell block of v: out[t[i]] = v[i].
// len(v) must be a multiple of 64.
func (t *Transform) Apply(v []float64) []float64 {
	var out = make([]float64, len(v))
	t.ApplyTo(out, v)
	return out
}

func (t *Transform) ApplyTo(dst, src []float64) {
	for offset := 0; offset+SquareCount <= len(src); offset += SquareCount {
		for i := 0; i < SquareCount; i++ {
			dst[offset+int(t[i])] = src[offset+i]
		}
	}
}

func (t *Transform) ApplyBitboard(b uint64) uint64 {
	var result uint64
	for x := b; x != 0; x &= x - 1 {
		var sq = firstOne(x)
		result |= 1 << t[sq]
	}
	return result
}

func (t *Transform) ApplyPosition(pos Position) Position {
	return Position{
		Own:      t.ApplyBitboard(pos.Own),
		Opponent: t.ApplyBitboard(pos.Opponent),
	}
}

// Invert returns the cell that t moves to loc.
func (t *Transform) Invert(loc int) int {
	for i := range t {
		if int(t[i]) == loc {
			return i
		}
	}
	panic("board: transform is not a permutation")
}

func (t *Transform) Inverse() Transform {
	var inv Transform
	for i := range t {
		inv[t[i]] = uint8(i)
	}
	return inv
}

// Compose returns the transform equivalent to applying a and then b.
func Compose(a, b *Transform) Transform {
	var result Transform
	for i := range a {
		result[i] = b[a[i]]
	}
	return result
}

// SymmetryIndex returns the position of t in Symmetries.
func SymmetryIndex(t *Transform) (int, bool) {
	for k := range Symmetries {
		if Symmetries[k] == *t {
			return k, true
		}
	}
	return -1, false
}
