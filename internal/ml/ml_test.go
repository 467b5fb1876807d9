package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightedMSECost(t *testing.T) {
	var cost = &WeightedMSECost{K: DefaultCloseGameK}

	t.Run("weight is three at zero label", func(t *testing.T) {
		require.InDelta(t, 3.0, cost.Weight(0), 1e-12)
	})

	t.Run("weight is symmetric and tends to one", func(t *testing.T) {
		require.InDelta(t, cost.Weight(0.3), cost.Weight(-0.3), 1e-12)
		require.InDelta(t, 1.0, cost.Weight(1), 1e-4)
		require.Greater(t, cost.Weight(0.05), cost.Weight(0.5))
	})

	t.Run("derivative matches finite difference", func(t *testing.T) {
		const h = 1e-6
		for _, target := range []float64{-0.7, -0.05, 0, 0.2, 0.9} {
			var p = 0.3
			var numeric = (cost.Cost(p+h, target) - cost.Cost(p-h, target)) / (2 * h)
			require.InDelta(t, numeric, cost.CostPrime(p, target), 1e-5)
		}
	})
}

func TestMSECost(t *testing.T) {
	var cost = &MSECost{}
	require.InDelta(t, 0.25, cost.Cost(0.5, 0), 1e-12)
	require.InDelta(t, -1.0, cost.CostPrime(0, 0.5), 1e-12)
	var weighted = &WeightedMSECost{K: DefaultCloseGameK}
	require.InDelta(t, weighted.Weight(0.4)*cost.Cost(0.1, 0.4), weighted.Cost(0.1, 0.4), 1e-12)
}

func TestActivations(t *testing.T) {
	const h = 1e-6
	var fns = map[string]IActivationFn{
		"relu":    &ReLuActivation{},
		"leaky":   &LeakyReLuActivation{Slope: DefaultLeakySlope},
		"sigmoid": &SigmoidActivation{},
		"tanh":    &TanhActivation{},
	}
	for name, fn := range fns {
		t.Run(name, func(t *testing.T) {
			for _, x := range []float64{-2, -0.5, 0.3, 1.7} {
				var numeric = (fn.Sigma(x+h) - fn.Sigma(x-h)) / (2 * h)
				require.InDelta(t, numeric, fn.SigmaPrime(x), 1e-5)
			}
		})
	}
}

func TestAdam(t *testing.T) {
	t.Run("minimizes a quadratic", func(t *testing.T) {
		var p = NewParam("w", 1, 2)
		p.Value.Data[0], p.Value.Data[1] = 3, -2
		var opt = NewAdam(ConstantSchedule(0.01))
		for i := 0; i < 3000; i++ {
			p.Grad.Data[0] = 2 * (p.Value.Data[0] - 1)
			p.Grad.Data[1] = 2 * (p.Value.Data[1] + 1)
			opt.Step([]*Param{p})
		}
		require.InDelta(t, 1.0, p.Value.Data[0], 1e-2)
		require.InDelta(t, -1.0, p.Value.Data[1], 1e-2)
		require.Equal(t, 0.0, p.Grad.Data[0])
	})

	t.Run("skips frozen params and buffers", func(t *testing.T) {
		var frozen = NewParam("frozen", 1, 1)
		frozen.Frozen = true
		frozen.Grad.Data[0] = 1
		var buffer = NewBuffer("buffer", 1, 1)
		var opt = NewAdam(ConstantSchedule(0.1))
		opt.Step([]*Param{frozen, buffer})
		require.Equal(t, 0.0, frozen.Value.Data[0])
		require.Equal(t, 0.0, buffer.Value.Data[0])
		require.Empty(t, opt.State().Moments)
	})

	t.Run("state round trip continues identically", func(t *testing.T) {
		var run = func(opt *Adam, p *Param, steps int) {
			for i := 0; i < steps; i++ {
				p.Grad.Data[0] = math.Sin(float64(opt.StepCount()))
				opt.Step([]*Param{p})
			}
		}
		var a = NewParam("w", 1, 1)
		var optA = NewAdam(ConstantSchedule(0.01))
		run(optA, a, 20)

		var b = NewParam("w", 1, 1)
		var optB = NewAdam(ConstantSchedule(0.01))
		run(optB, b, 10)
		var optC = NewAdam(ConstantSchedule(0.01))
		optC.LoadState(optB.State())
		run(optC, b, 10)

		require.InDelta(t, a.Value.Data[0], b.Value.Data[0], 1e-15)
	})
}

func TestWarmupDecaySchedule(t *testing.T) {
	var s = &WarmupDecaySchedule{Base: 1, Warmup: 10, Decay: 10, Total: 100}
	require.InDelta(t, 0.1, s.Rate(1), 1e-12)
	require.InDelta(t, 1.0, s.Rate(10), 1e-12)
	require.InDelta(t, 1.0, s.Rate(50), 1e-12)
	require.InDelta(t, 0.5, s.Rate(95), 1e-12)
	require.InDelta(t, 0.0, s.Rate(100), 1e-12)
}

func TestPrecision(t *testing.T) {
	var p, err = ParsePrecision("float32")
	require.NoError(t, err)
	var m = NewMatrix(1, 1)
	m.Data[0] = 1.0 / 3
	p.Round(&m)
	require.Equal(t, float64(float32(1.0/3)), m.Data[0])

	_, err = ParsePrecision("int8")
	require.Error(t, err)
}

func TestMatrix(t *testing.T) {
	var m = MatrixFromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.Equal(t, 2, m.Rows)
	require.Equal(t, 3, m.Cols)
	require.Equal(t, 6.0, m.Get(1, 2))
	require.Equal(t, []float64{4, 5, 6}, m.Row(1))
	require.Equal(t, []float64{2, 5}, m.Column(1))
}
