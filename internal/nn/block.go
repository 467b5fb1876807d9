package nn

import (
	"fmt"

	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"golang.org/x/exp/rand"
)

// Encoder maps the raw feature vector to the hidden width.
type Encoder struct {
	linear     *Linear
	activation *Activation
}

func NewEncoder(inputs, width int, fn ml.IActivationFn) *Encoder {
	return &Encoder{
		linear:     NewLinear("encoder.linear", inputs, width, true),
		activation: NewActivation(fn),
	}
}

func (e *Encoder) init(rnd *rand.Rand) {
	e.linear.InitWeightsReLU(rnd)
}

func (e *Encoder) Params() []*ml.Param {
	return e.linear.Params()
}

func (e *Encoder) Forward(x ml.Matrix) ml.Matrix {
	return e.activation.Forward(e.linear.Forward(x))
}

func (e *Encoder) Backward(dy ml.Matrix) ml.Matrix {
	return e.linear.Backward(e.activation.Backward(dy))
}

// ResidualBlock computes act(norm(linear2(act(linear1(x)))) + x).
type ResidualBlock struct {
	linear1 *Linear
	act1    *Activation
	linear2 *Linear
	norm    *BatchNorm
	act2    *Activation
}

func NewResidualBlock(index, width int, fn ml.IActivationFn) *ResidualBlock {
	var name = fmt.Sprintf("tower.%d", index)
	return &ResidualBlock{
		linear1: NewLinear(name+".linear1", width, width, true),
		act1:    NewActivation(fn),
		// the normalization supplies the shift
		linear2: NewLinear(name+".linear2", width, width, false),
		norm:    NewBatchNorm(name+".norm", width),
		act2:    NewActivation(fn),
	}
}

func (b *ResidualBlock) init(rnd *rand.Rand) {
	b.linear1.InitWeightsReLU(rnd)
	b.linear2.InitWeightsReLU(rnd)
}

func (b *ResidualBlock) Params() []*ml.Param {
	var result []*ml.Param
	result = append(result, b.linear1.Params()...)
	result = append(result, b.linear2.Params()...)
	result = append(result, b.norm.Params()...)
	return result
}

func (b *ResidualBlock) Forward(x ml.Matrix, training bool) (ml.Matrix, error) {
	var h = b.act1.Forward(b.linear1.Forward(x))
	h, err := b.norm.Forward(b.linear2.Forward(h), training)
	if err != nil {
		return ml.Matrix{}, err
	}
	h.AddMatrix(&x)
	return b.act2.Forward(h), nil
}

func (b *ResidualBlock) Backward(dy ml.Matrix) ml.Matrix {
	var dSum = b.act2.Backward(dy)
	var dx = b.linear1.Backward(b.act1.Backward(b.linear2.Backward(b.norm.Backward(dSum))))
	dx.AddMatrix(&dSum)
	return dx
}
