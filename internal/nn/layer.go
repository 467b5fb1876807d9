package nn

import (
	"math"

	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"golang.org/x/exp/rand"
)

// Linear computes y = x*W^T + b for a batch x with one sample per row.
type Linear struct {
	Weight *ml.Param
	Bias   *ml.Param
	input  ml.Matrix
}

func NewLinear(name string, inputSize, outputSize int, bias bool) *Linear {
	var l = &Linear{
		Weight: ml.NewParam(name+".weight", outputSize, inputSize),
	}
	if bias {
		l.Bias = ml.NewParam(name+".bias", outputSize, 1)
	}
	return l
}

func (l *Linear) InputSize() int  { return l.Weight.Value.Cols }
func (l *Linear) OutputSize() int { return l.Weight.Value.Rows }

func (l *Linear) InitWeightsReLU(rnd *rand.Rand) *Linear {
	ml.InitUniform(rnd, l.Weight.Value.Data, 2.0/float64(l.InputSize()))
	return l
}

func (l *Linear) InitWeightsSigmoid(rnd *rand.Rand) *Linear {
	ml.InitUniform(rnd, l.Weight.Value.Data, 2.0/float64(l.InputSize()+l.OutputSize()))
	return l
}

func (l *Linear) Params() []*ml.Param {
	if l.Bias == nil {
		return []*ml.Param{l.Weight}
	}
	return []*ml.Param{l.Weight, l.Bias}
}

func (l *Linear) Forward(x ml.Matrix) ml.Matrix {
	l.input = x
	var y = ml.NewMatrix(x.Rows, l.OutputSize())
	for o := 0; o < y.Cols; o++ {
		var out = y.Column(o)
		if l.Bias != nil {
			var b = l.Bias.Value.Data[o]
			for s := range out {
				out[s] = b
			}
		}
		for i := 0; i < x.Cols; i++ {
			var w = l.Weight.Value.Get(o, i)
			if w == 0 {
				continue
			}
			var in = x.Column(i)
			for s := range out {
				out[s] += w * in[s]
			}
		}
	}
	return y
}

// Backward accumulates parameter gradients and returns the input gradient.
func (l *Linear) Backward(dy ml.Matrix) ml.Matrix {
	var x = l.input
	var dx = ml.NewMatrix(x.Rows, x.Cols)
	for o := 0; o < dy.Cols; o++ {
		var d = dy.Column(o)
		if l.Bias != nil {
			var sum float64
			for _, v := range d {
				sum += v
			}
			l.Bias.Grad.Data[o] += sum
		}
		for i := 0; i < x.Cols; i++ {
			var in = x.Column(i)
			var g float64
			for s, v := range d {
				g += v * in[s]
			}
			l.Weight.Grad.Add(o, i, g)

			var w = l.Weight.Value.Get(o, i)
			if w == 0 {
				continue
			}
			var dIn = dx.Column(i)
			for s, v := range d {
				dIn[s] += w * v
			}
		}
	}
	return dx
}

// Activation applies fn elementwise and remembers its input.
type Activation struct {
	fn    ml.IActivationFn
	input ml.Matrix
}

func NewActivation(fn ml.IActivationFn) *Activation {
	return &Activation{fn: fn}
}

func (a *Activation) Forward(x ml.Matrix) ml.Matrix {
	a.input = x
	var y = ml.NewMatrix(x.Rows, x.Cols)
	for i, v := range x.Data {
		y.Data[i] = a.fn.Sigma(v)
	}
	return y
}

func (a *Activation) Backward(dy ml.Matrix) ml.Matrix {
	var dx = ml.NewMatrix(dy.Rows, dy.Cols)
	for i, v := range dy.Data {
		dx.Data[i] = v * a.fn.SigmaPrime(a.input.Data[i])
	}
	return dx
}

const (
	batchNormEps      = 1e-5
	batchNormMomentum = 0.1
)

// BatchNorm normalizes every feature over the batch. In training mode it
// uses batch statistics and updates the running averages; otherwise (or
// when frozen) it uses the running averages.
type BatchNorm struct {
	Gamma       *ml.Param
	Beta        *ml.Param
	RunningMean *ml.Param
	RunningVar  *ml.Param
	Frozen      bool

	xhat      ml.Matrix
	invStd    []float64
	batchMode bool
}

func NewBatchNorm(name string, size int) *BatchNorm {
	var bn = &BatchNorm{
		Gamma:       ml.NewParam(name+".weight", size, 1),
		Beta:        ml.NewParam(name+".bias", size, 1),
		RunningMean: ml.NewBuffer(name+".running_mean", size, 1),
		RunningVar:  ml.NewBuffer(name+".running_var", size, 1),
	}
	for i := 0; i < size; i++ {
		bn.Gamma.Value.Data[i] = 1
		bn.RunningVar.Value.Data[i] = 1
	}
	return bn
}

func (bn *BatchNorm) Params() []*ml.Param {
	return []*ml.Param{bn.Gamma, bn.Beta, bn.RunningMean, bn.RunningVar}
}

func (bn *BatchNorm) Forward(x ml.Matrix, training bool) (ml.Matrix, error) {
	var useBatch = training && !bn.Frozen
	if useBatch && x.Rows < 2 {
		return ml.Matrix{}, ErrBatchTooSmall
	}
	bn.batchMode = useBatch
	bn.xhat = ml.NewMatrix(x.Rows, x.Cols)
	bn.invStd = make([]float64, x.Cols)
	var y = ml.NewMatrix(x.Rows, x.Cols)
	var n = float64(x.Rows)
	for j := 0; j < x.Cols; j++ {
		var in = x.Column(j)
		var mean, variance float64
		if useBatch {
			for _, v := range in {
				mean += v
			}
			mean /= n
			for _, v := range in {
				variance += (v - mean) * (v - mean)
			}
			variance /= n
			bn.RunningMean.Value.Data[j] = (1-batchNormMomentum)*bn.RunningMean.Value.Data[j] + batchNormMomentum*mean
			bn.RunningVar.Value.Data[j] = (1-batchNormMomentum)*bn.RunningVar.Value.Data[j] + batchNormMomentum*variance*n/(n-1)
		} else {
			mean = bn.RunningMean.Value.Data[j]
			variance = bn.RunningVar.Value.Data[j]
		}
		var invStd = 1 / math.Sqrt(variance+batchNormEps)
		bn.invStd[j] = invStd
		var gamma, beta = bn.Gamma.Value.Data[j], bn.Beta.Value.Data[j]
		var xhat = bn.xhat.Column(j)
		var out = y.Column(j)
		for s, v := range in {
			xhat[s] = (v - mean) * invStd
			out[s] = gamma*xhat[s] + beta
		}
	}
	return y, nil
}

func (bn *BatchNorm) Backward(dy ml.Matrix) ml.Matrix {
	var dx = ml.NewMatrix(dy.Rows, dy.Cols)
	var n = float64(dy.Rows)
	for j := 0; j < dy.Cols; j++ {
		var d = dy.Column(j)
		var xhat = bn.xhat.Column(j)
		var gamma = bn.Gamma.Value.Data[j]
		var sumD, sumDXhat float64
		for s, v := range d {
			sumD += v
			sumDXhat += v * xhat[s]
		}
		bn.Gamma.Grad.Data[j] += sumDXhat
		bn.Beta.Grad.Data[j] += sumD

		var out = dx.Column(j)
		var k = gamma * bn.invStd[j]
		if !bn.batchMode {
			for s, v := range d {
				out[s] = k * v
			}
			continue
		}
		for s, v := range d {
			out[s] = k / n * (n*v - sumD - xhat[s]*sumDXhat)
		}
	}
	return dx
}
