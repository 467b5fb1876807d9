package nn

import (
	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/pkg/errors"
)

// StateDict returns copies of all parameters and buffers keyed by name.
func (e *Evaluator) StateDict() map[string]ml.Matrix {
	var params = e.Params()
	var result = make(map[string]ml.Matrix, len(params))
	for _, p := range params {
		result[p.Name] = p.Value.Clone()
	}
	return result
}

// LoadStateDict replaces parameter values. The names and shapes must match
// the evaluator's architecture exactly.
func (e *Evaluator) LoadStateDict(state map[string]ml.Matrix) error {
	var params = e.Params()
	if len(state) != len(params) {
		return errors.Errorf("state has %d tensors, model has %d", len(state), len(params))
	}
	for _, p := range params {
		var m, ok = state[p.Name]
		if !ok {
			return errors.Errorf("state misses %v", p.Name)
		}
		if !p.Value.SameShape(&m) {
			return errors.Wrapf(ErrShape, "%v: got %dx%d, want %dx%d",
				p.Name, m.Rows, m.Cols, p.Value.Rows, p.Value.Cols)
		}
	}
	for _, p := range params {
		var m = state[p.Name]
		copy(p.Value.Data, m.Data)
	}
	return nil
}
