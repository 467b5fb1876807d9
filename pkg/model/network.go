package model

import (
	"math"
)

const normEps = 1e-5

type dense struct {
	in, out int
	weight  []float32
	bias    []float32
}

// Network evaluates positions with an artifact whose normalization
// layers are folded into the preceding linear layers. It is safe for
// concurrent use.
type Network struct {
	width  int
	head   Head
	slope  float64
	input  dense
	tower  [][2]dense
	output dense
}

func Load(path string) (*Network, error) {
	var a, err = LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewNetwork(a)
}

func NewNetwork(a *Artifact) (*Network, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	var n = &Network{
		width:  a.Width,
		head:   a.Head,
		slope:  float64(a.LeakySlope),
		input:  newDense(&a.Encoder),
		tower:  make([][2]dense, len(a.Tower)),
		output: newDense(&a.Output),
	}
	for i := range a.Tower {
		var b = &a.Tower[i]
		n.tower[i] = [2]dense{newDense(&b.Linear1), foldNorm(&b.Linear2, &b.Norm)}
	}
	return n, nil
}

func newDense(l *Layer) dense {
	var d = dense{in: l.In, out: l.Out, weight: l.Weight, bias: l.Bias}
	if len(d.bias) == 0 {
		d.bias = make([]float32, l.Out)
	}
	return d
}

// foldNorm merges y = gamma*(Wx-mean)/sqrt(var+eps)+beta into one layer.
func foldNorm(l *Layer, norm *Norm) dense {
	var d = dense{
		in:     l.In,
		out:    l.Out,
		weight: make([]float32, len(l.Weight)),
		bias:   make([]float32, l.Out),
	}
	for o := 0; o < l.Out; o++ {
		var scale = float64(norm.Gamma[o]) / math.Sqrt(float64(norm.Var[o])+normEps)
		for i := 0; i < l.In; i++ {
			d.weight[o*l.In+i] = float32(float64(l.Weight[o*l.In+i]) * scale)
		}
		d.bias[o] = float32(float64(norm.Beta[o]) - float64(norm.Mean[o])*scale)
	}
	return d
}

func (d *dense) forward(dst, x []float64) {
	for o := 0; o < d.out; o++ {
		var sum = float64(d.bias[o])
		var row = d.weight[o*d.in : (o+1)*d.in]
		for i, v := range x {
			if v != 0 {
				sum += float64(row[i]) * v
			}
		}
		dst[o] = sum
	}
}

func (n *Network) leaky(x float64) float64 {
	if x < 0 {
		return n.slope * x
	}
	return x
}

// Evaluate returns the evaluation in (-1, 1) for the side owning own.
func (n *Network) Evaluate(own, opponent uint64) float64 {
	var input = make([]float64, InputSize)
	for sq := 0; sq < SquareCount; sq++ {
		if own&(1<<uint(sq)) != 0 {
			input[sq] = 1
		}
		if opponent&(1<<uint(sq)) != 0 {
			input[SquareCount+sq] = 1
		}
	}
	return n.EvaluateFeatures(input)
}

// EvaluateFeatures evaluates an already encoded position.
func (n *Network) EvaluateFeatures(input []float64) float64 {
	var h = make([]float64, n.width)
	var t = make([]float64, n.width)
	var u = make([]float64, n.width)
	n.input.forward(h, input)
	for i := range h {
		h[i] = n.leaky(h[i])
	}
	for _, block := range n.tower {
		block[0].forward(t, h)
		for i := range t {
			t[i] = n.leaky(t[i])
		}
		block[1].forward(u, t)
		for i := range h {
			h[i] = n.leaky(u[i] + h[i])
		}
	}
	var out = make([]float64, n.output.out)
	n.output.forward(out, h)
	if n.head == HeadScalar {
		return math.Tanh(out[0])
	}
	var sum float64
	for i := 0; i < SquareCount; i++ {
		sum += sigmoid(out[i]) - sigmoid(out[SquareCount+i])
	}
	return sum / SquareCount
}

// Centidisks converts an evaluation to hundredths of a disk.
func Centidisks(value float64) int {
	return int(math.Round(value * SquareCount * 100))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
