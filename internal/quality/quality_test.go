package quality

import (
	"context"
	"math/bits"
	"testing"

	"github.com/ChizhovVadim/OthelloNet/internal/dataset"
	"github.com/stretchr/testify/require"
)

type diskCount struct{}

func (diskCount) Evaluate(own, opponent uint64) float64 {
	return float64(bits.OnesCount64(own)-bits.OnesCount64(opponent)) / 64
}

type constant float64

func (c constant) Evaluate(own, opponent uint64) float64 { return float64(c) }

func TestRunQuality(t *testing.T) {
	var source = dataset.MemorySource{
		{Own: 0xFF, Opponent: 0xFF00, Score: 0},
		{Own: 0xFFFF, Opponent: 0xFF0000, Score: 8},
		{Own: 0xF, Opponent: 0xFF0000, Score: -4},
	}
	var report, err = RunQuality(context.Background(), diskCount{}, source)
	require.NoError(t, err)
	require.Equal(t, 3, report.Count)
	require.InDelta(t, 0, report.MSE, 1e-12)
	require.InDelta(t, 0, report.SymmetryDrift, 1e-12)
	require.Equal(t, 1.0, report.SignAgreement)

	report, err = RunQuality(context.Background(), constant(0.125), source)
	require.NoError(t, err)
	require.InDelta(t, (0.125*0.125+0+0.1875*0.1875)/3, report.MSE, 1e-12)
	require.InDelta(t, (8+0+12)/3.0, report.MeanAbsDisks, 1e-9)
	require.Equal(t, 0.5, report.SignAgreement)
}

func TestRunQualityEmpty(t *testing.T) {
	var report, err = RunQuality(context.Background(), constant(0), dataset.MemorySource{})
	require.NoError(t, err)
	require.Equal(t, Report{}, report)
}
