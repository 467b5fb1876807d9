package export

import (
	"fmt"

	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/ChizhovVadim/OthelloNet/internal/nn"
	"github.com/ChizhovVadim/OthelloNet/pkg/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrExport = errors.New("export: forward pass failed on example input")

// Export runs the evaluator once on example in evaluation mode and
// freezes its parameters into an inference artifact.
func Export(e *nn.Evaluator, example []float64) (*model.Artifact, error) {
	var value, err = probe(e, example)
	if err != nil {
		return nil, errors.Wrap(ErrExport, err.Error())
	}

	var config = e.Config()
	var head = model.HeadDual
	if config.Head == nn.ScalarHead {
		head = model.HeadScalar
	}
	var state = e.StateDict()
	var a = &model.Artifact{
		Inputs:     len(example),
		Width:      config.Width,
		Head:       head,
		LeakySlope: float32(config.Slope()),
		Encoder:    layer(state, "encoder.linear", true),
		Output:     layer(state, "head.linear", true),
	}
	for i := 0; i < config.Blocks; i++ {
		var prefix = fmt.Sprintf("tower.%d.", i)
		a.Tower = append(a.Tower, model.Block{
			Linear1: layer(state, prefix+"linear1", true),
			Linear2: layer(state, prefix+"linear2", false),
			Norm: model.Norm{
				Gamma: vector(state[prefix+"norm.weight"]),
				Beta:  vector(state[prefix+"norm.bias"]),
				Mean:  vector(state[prefix+"norm.running_mean"]),
				Var:   vector(state[prefix+"norm.running_var"]),
			},
		})
	}
	if err := a.Validate(); err != nil {
		return nil, errors.Wrap(ErrExport, err.Error())
	}
	log.Debug().Float64("example_value", value).Int("blocks", config.Blocks).Msg("exported evaluator")
	return a, nil
}

// ExportFile exports e and writes the artifact to path. Nothing is
// written when the export fails.
func ExportFile(e *nn.Evaluator, example []float64, path string) error {
	var a, err = Export(e, example)
	if err != nil {
		return err
	}
	if err := a.Save(path); err != nil {
		return errors.Wrapf(err, "save artifact %v", path)
	}
	log.Info().Str("path", path).Msg("saved artifact")
	return nil
}

func probe(e *nn.Evaluator, example []float64) (value float64, err error) {
	var training = e.Training()
	e.SetTraining(false)
	defer e.SetTraining(training)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	out, err := e.Forward(ml.MatrixFromRows([][]float64{example}))
	if err != nil {
		return 0, err
	}
	if len(out) != 1 || !ml.IsFinite(out[0]) {
		return 0, errors.Errorf("non-finite output %v", out)
	}
	return out[0], nil
}

// layer converts a column-major out x in matrix to row-major weights.
func layer(state map[string]ml.Matrix, name string, bias bool) model.Layer {
	var w = state[name+".weight"]
	var l = model.Layer{
		In:     w.Cols,
		Out:    w.Rows,
		Weight: make([]float32, w.Rows*w.Cols),
	}
	for o := 0; o < w.Rows; o++ {
		for i := 0; i < w.Cols; i++ {
			l.Weight[o*w.Cols+i] = float32(w.Get(o, i))
		}
	}
	if bias {
		l.Bias = vector(state[name+".bias"])
	}
	return l
}

func vector(m ml.Matrix) []float32 {
	var v = make([]float32, len(m.Data))
	for i, x := range m.Data {
		v[i] = float32(x)
	}
	return v
}
