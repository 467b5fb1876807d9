package nn

import (
	"strings"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
)

type HeadKind int

const (
	// DualHead predicts a per-cell occupancy probability for both sides
	// and reduces it to sum(own - opponent) / 64.
	DualHead HeadKind = iota
	// ScalarHead predicts the evaluation directly through tanh.
	ScalarHead
)

func (k HeadKind) String() string {
	if k == ScalarHead {
		return "scalar"
	}
	return "dual"
}

func ParseHeadKind(s string) (HeadKind, error) {
	switch strings.ToLower(s) {
	case "", "dual":
		return DualHead, nil
	case "scalar":
		return ScalarHead, nil
	}
	return DualHead, errors.Errorf("unknown head %q", s)
}

func (k HeadKind) Outputs() int {
	if k == ScalarHead {
		return 1
	}
	return 2 * board.SquareCount
}

// Head turns the tower output into one evaluation per sample in (-1, 1).
type Head interface {
	Kind() HeadKind
	Params() []*ml.Param
	Forward(x ml.Matrix) []float64
	Backward(dOut []float64) ml.Matrix
}

func NewHead(kind HeadKind, width int) Head {
	if kind == ScalarHead {
		return &scalarHead{linear: NewLinear("head.linear", width, 1, true)}
	}
	return &dualHead{linear: NewLinear("head.linear", width, kind.Outputs(), true)}
}

type scalarHead struct {
	linear *Linear
	output []float64
}

func (h *scalarHead) Kind() HeadKind      { return ScalarHead }
func (h *scalarHead) Params() []*ml.Param { return h.linear.Params() }

func (h *scalarHead) init(rnd *rand.Rand) {
	h.linear.InitWeightsSigmoid(rnd)
}

func (h *scalarHead) Forward(x ml.Matrix) []float64 {
	var z = h.linear.Forward(x)
	h.output = make([]float64, z.Rows)
	var tanh = &ml.TanhActivation{}
	for s, v := range z.Column(0) {
		h.output[s] = tanh.Sigma(v)
	}
	return h.output
}

func (h *scalarHead) Backward(dOut []float64) ml.Matrix {
	var dz = ml.NewMatrix(len(dOut), 1)
	for s, d := range dOut {
		var y = h.output[s]
		dz.Data[s] = d * (1 - y*y)
	}
	return h.linear.Backward(dz)
}

type dualHead struct {
	linear  *Linear
	sigmoid ml.SigmoidActivation
	probs   ml.Matrix
}

func (h *dualHead) Kind() HeadKind      { return DualHead }
func (h *dualHead) Params() []*ml.Param { return h.linear.Params() }

func (h *dualHead) init(rnd *rand.Rand) {
	h.linear.InitWeightsSigmoid(rnd)
}

func (h *dualHead) Forward(x ml.Matrix) []float64 {
	var z = h.linear.Forward(x)
	h.probs = ml.NewMatrix(z.Rows, z.Cols)
	for i, v := range z.Data {
		h.probs.Data[i] = h.sigmoid.Sigma(v)
	}
	var out = make([]float64, z.Rows)
	for j := 0; j < z.Cols; j++ {
		var sign = cellSign(j)
		for s, p := range h.probs.Column(j) {
			out[s] += sign * p
		}
	}
	for s := range out {
		out[s] /= board.SquareCount
	}
	return out
}

func (h *dualHead) Backward(dOut []float64) ml.Matrix {
	var dz = ml.NewMatrix(h.probs.Rows, h.probs.Cols)
	for j := 0; j < dz.Cols; j++ {
		var sign = cellSign(j) / board.SquareCount
		var probs = h.probs.Column(j)
		var d = dz.Column(j)
		for s, p := range probs {
			d[s] = dOut[s] * sign * p * (1 - p)
		}
	}
	return h.linear.Backward(dz)
}

func cellSign(j int) float64 {
	if j < board.SquareCount {
		return 1
	}
	return -1
}
