package board

import (
	"math/bits"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomPosition(rnd *rand.Rand) Position {
	var pos Position
	for i := 0; i < SquareCount; i++ {
		switch rnd.Intn(3) {
		case 1:
			pos.Own |= 1 << uint(i)
		case 2:
			pos.Opponent |= 1 << uint(i)
		}
	}
	return pos
}

func TestEncodeDecode(t *testing.T) {
	var rnd = rand.New(rand.NewSource(1))
	t.Run("round trip over disjoint masks", func(t *testing.T) {
		for n := 0; n < 1000; n++ {
			var pos = randomPosition(rnd)
			require.NoError(t, pos.Validate())
			require.Equal(t, pos, Decode(Encode(pos)))
		}
	})

	t.Run("extreme masks", func(t *testing.T) {
		for _, pos := range []Position{
			{},
			{Own: ^uint64(0)},
			{Opponent: ^uint64(0)},
			{Own: 0x5555555555555555, Opponent: 0xAAAAAAAAAAAAAAAA},
		} {
			require.Equal(t, pos, Decode(Encode(pos)))
		}
	})

	t.Run("feature layout", func(t *testing.T) {
		var v = Encode(Position{Own: 1 << 3, Opponent: 1 << 60})
		require.Len(t, v, FeatureSize)
		require.Equal(t, 1.0, v[3])
		require.Equal(t, 1.0, v[SquareCount+60])
		var sum float64
		for _, x := range v {
			sum += x
		}
		require.Equal(t, 2.0, sum)
	})

	t.Run("overlap is set in both halves", func(t *testing.T) {
		var pos = Position{Own: 1 << 7, Opponent: 1 << 7}
		require.ErrorIs(t, pos.Validate(), ErrOverlap)
		var v = Encode(pos)
		require.Equal(t, 1.0, v[7])
		require.Equal(t, 1.0, v[SquareCount+7])
	})
}

func TestSymmetryTable(t *testing.T) {
	t.Run("identity is first", func(t *testing.T) {
		for i := 0; i < SquareCount; i++ {
			require.Equal(t, uint8(i), Symmetries[Identity][i])
		}
	})

	t.Run("known rows", func(t *testing.T) {
		require.Equal(t, []uint8{56, 48, 40, 32, 24, 16, 8, 0}, Symmetries[Rotate90][:8])
		require.Equal(t, []uint8{63, 62, 61, 60, 59, 58, 57, 56}, Symmetries[Rotate180][:8])
		require.Equal(t, []uint8{7, 15, 23, 31, 39, 47, 55, 63}, Symmetries[Rotate270][:8])
		require.Equal(t, []uint8{56, 57, 58, 59, 60, 61, 62, 63}, Symmetries[FlipXAxis][:8])
		require.Equal(t, []uint8{7, 6, 5, 4, 3, 2, 1, 0}, Symmetries[FlipYAxis][:8])
		require.Equal(t, []uint8{0, 8, 16, 24, 32, 40, 48, 56}, Symmetries[FlipMainDiagonal][:8])
		require.Equal(t, []uint8{63, 55, 47, 39, 31, 23, 15, 7}, Symmetries[FlipAntiDiagonal][:8])
	})

	t.Run("pairwise distinct", func(t *testing.T) {
		for a := 0; a < SymmetryCount; a++ {
			for b := a + 1; b < SymmetryCount; b++ {
				require.NotEqual(t, Symmetries[a], Symmetries[b], "%v vs %v", SymmetryName(a), SymmetryName(b))
			}
		}
	})
}

func TestSymmetryBijection(t *testing.T) {
	var src = make([]float64, FeatureSize)
	for i := range src {
		src[i] = float64(i)
	}
	for k := range Symmetries {
		var out = Symmetries[k].Apply(src)
		var sorted = append([]float64(nil), out...)
		sort.Float64s(sorted)
		require.Equal(t, src, sorted, SymmetryName(k))
		for i := 0; i < SquareCount; i++ {
			require.Equal(t, src[i], out[Symmetries[k][i]])
			require.Equal(t, src[SquareCount+i], out[SquareCount+int(Symmetries[k][i])])
		}
	}
}

func TestSymmetryClosure(t *testing.T) {
	for a := range Symmetries {
		for b := range Symmetries {
			var c = Compose(&Symmetries[a], &Symmetries[b])
			var k, ok = SymmetryIndex(&c)
			require.True(t, ok, "%v then %v", SymmetryName(a), SymmetryName(b))

			var v = make([]float64, SquareCount)
			for i := range v {
				v[i] = float64(i * i)
			}
			var twice = Symmetries[b].Apply(Symmetries[a].Apply(v))
			require.Equal(t, twice, Symmetries[k].Apply(v))
		}
	}
}

func TestSymmetryInverse(t *testing.T) {
	for k := range Symmetries {
		var inv = Symmetries[k].Inverse()
		var id = Compose(&Symmetries[k], &inv)
		require.Equal(t, Symmetries[Identity], id)
		for loc := 0; loc < SquareCount; loc++ {
			require.Equal(t, int(inv[loc]), Symmetries[k].Invert(loc))
		}
	}
}

func TestBitboardSymmetry(t *testing.T) {
	var rnd = rand.New(rand.NewSource(2))
	for n := 0; n < 200; n++ {
		var pos = randomPosition(rnd)
		for k := range Symmetries {
			var tr = &Symmetries[k]
			var moved = tr.ApplyPosition(pos)
			require.Equal(t, tr.Apply(Encode(pos)), Encode(moved))
			require.Equal(t, pos.DiskCount(), moved.DiskCount())
		}
	}
}

func TestPositionSwap(t *testing.T) {
	var pos = Position{Own: 0x0000000810000000, Opponent: 0x0000001008000000}
	require.Equal(t, Position{Own: pos.Opponent, Opponent: pos.Own}, pos.Swap())
	require.Equal(t, pos, pos.Swap().Swap())
	require.Equal(t, 60, bits.OnesCount64(pos.Empty()))
	require.Equal(t, uint64(0), Position{Own: 0xFFFFFFFF, Opponent: 0xFFFFFFFF00000000}.Empty())
}
