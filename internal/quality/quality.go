package quality

import (
	"context"
	"math"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/ChizhovVadim/OthelloNet/internal/dataset"
	"github.com/rs/zerolog/log"
)

type IEvaluator interface {
	Evaluate(own, opponent uint64) float64
}

// Report compares evaluations with dataset labels on the [-1, 1] scale.
type Report struct {
	Count int
	// MSE is the unweighted mean squared error.
	MSE float64
	// MeanAbsDisks is the mean absolute error in disks.
	MeanAbsDisks float64
	// SignAgreement is the share of decided labels whose sign the
	// evaluation predicts.
	SignAgreement float64
	// SymmetryDrift is the mean absolute difference between the
	// evaluation of a position and of its symmetric images.
	SymmetryDrift float64
}

func RunQuality(ctx context.Context, evaluator IEvaluator, source dataset.Source) (Report, error) {
	var report = Report{Count: source.Len()}
	var sumSq, sumAbs, drift float64
	var decided, agreed int
	for i := 0; i < source.Len(); i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
		var rec, err = source.Record(i)
		if err != nil {
			return report, err
		}
		var pos = rec.Position()
		var label = rec.Label()
		var eval = evaluator.Evaluate(pos.Own, pos.Opponent)
		var x = eval - label
		sumSq += x * x
		sumAbs += math.Abs(x)
		if label != 0 {
			decided++
			if (eval > 0) == (label > 0) {
				agreed++
			}
		}
		for k := 1; k < board.SymmetryCount; k++ {
			var image = board.Symmetries[k].ApplyPosition(pos)
			drift += math.Abs(evaluator.Evaluate(image.Own, image.Opponent) - eval)
		}
	}
	if report.Count == 0 {
		return report, nil
	}
	var n = float64(report.Count)
	report.MSE = sumSq / n
	report.MeanAbsDisks = sumAbs / n * dataset.MaxScore
	report.SymmetryDrift = drift / (n * (board.SymmetryCount - 1))
	if decided != 0 {
		report.SignAgreement = float64(agreed) / float64(decided)
	}
	log.Info().
		Int("count", report.Count).
		Float64("mse", report.MSE).
		Float64("mean_abs_disks", report.MeanAbsDisks).
		Float64("sign_agreement", report.SignAgreement).
		Float64("symmetry_drift", report.SymmetryDrift).
		Msg("quality")
	return report, nil
}
