package nn

import (
	"strings"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
)

var (
	ErrBatchTooSmall    = errors.New("nn: training-mode batch needs at least 2 samples")
	ErrShape            = errors.New("nn: input shape mismatch")
	ErrUnknownComponent = errors.New("nn: unknown component")
)

type ActivationKind int

const (
	LeakyReLU ActivationKind = iota
	ReLU
)

func (k ActivationKind) String() string {
	if k == ReLU {
		return "relu"
	}
	return "leaky"
}

func ParseActivationKind(s string) (ActivationKind, error) {
	switch strings.ToLower(s) {
	case "", "leaky":
		return LeakyReLU, nil
	case "relu":
		return ReLU, nil
	}
	return LeakyReLU, errors.Errorf("unknown activation %q", s)
}

type Config struct {
	Inputs     int
	Width      int
	Blocks     int
	Head       HeadKind
	Activation ActivationKind
	// LeakySlope is used by LeakyReLU only.
	LeakySlope float64
}

// Slope is the negative-side slope of the hidden activation.
func (c Config) Slope() float64 {
	if c.Activation == ReLU {
		return 0
	}
	return c.LeakySlope
}

func (c Config) newActivation() ml.IActivationFn {
	if c.Activation == ReLU {
		return &ml.ReLuActivation{}
	}
	return &ml.LeakyReLuActivation{Slope: c.LeakySlope}
}

func DefaultConfig() Config {
	return Config{
		Inputs:     board.FeatureSize,
		Width:      256,
		Blocks:     4,
		Head:       DualHead,
		LeakySlope: ml.DefaultLeakySlope,
	}
}

// Evaluator maps encoded positions to evaluations in (-1, 1):
// encoder -> residual tower -> head.
type Evaluator struct {
	config    Config
	encoder   *Encoder
	tower     []*ResidualBlock
	head      Head
	precision ml.Precision
	training  bool
}

func NewEvaluator(config Config, rnd *rand.Rand) *Evaluator {
	var e = &Evaluator{
		config:  config,
		encoder: NewEncoder(config.Inputs, config.Width, config.newActivation()),
		tower:   make([]*ResidualBlock, config.Blocks),
		head:    NewHead(config.Head, config.Width),
	}
	for i := range e.tower {
		e.tower[i] = NewResidualBlock(i, config.Width, config.newActivation())
	}
	if rnd != nil {
		e.encoder.init(rnd)
		for _, b := range e.tower {
			b.init(rnd)
		}
		if h, ok := e.head.(interface{ init(*rand.Rand) }); ok {
			h.init(rnd)
		}
	}
	return e
}

func (e *Evaluator) Config() Config { return e.config }

func (e *Evaluator) SetPrecision(p ml.Precision) { e.precision = p }

func (e *Evaluator) Precision() ml.Precision { return e.precision }

// SetTraining switches normalization layers between batch statistics
// (training) and running statistics (evaluation).
func (e *Evaluator) SetTraining(training bool) { e.training = training }

func (e *Evaluator) Training() bool { return e.training }

// Params lists all parameters and buffers in graph order.
func (e *Evaluator) Params() []*ml.Param {
	var result []*ml.Param
	result = append(result, e.encoder.Params()...)
	for _, b := range e.tower {
		result = append(result, b.Params()...)
	}
	result = append(result, e.head.Params()...)
	return result
}

func (e *Evaluator) ZeroGrad() {
	for _, p := range e.Params() {
		if !p.Buffer {
			p.ZeroGrad()
		}
	}
}

// Forward evaluates a batch with one encoded position per row.
func (e *Evaluator) Forward(x ml.Matrix) ([]float64, error) {
	if x.Cols != e.config.Inputs {
		return nil, errors.Wrapf(ErrShape, "got %d inputs, want %d", x.Cols, e.config.Inputs)
	}
	if x.Rows == 0 {
		return nil, nil
	}
	var h = e.encoder.Forward(x)
	e.precision.Round(&h)
	for i, b := range e.tower {
		var err error
		h, err = b.Forward(h, e.training)
		if err != nil {
			return nil, errors.Wrapf(err, "tower block %d", i)
		}
		e.precision.Round(&h)
	}
	var out = e.head.Forward(h)
	if e.precision == ml.Float32 {
		for i, v := range out {
			out[i] = float64(float32(v))
		}
	}
	return out, nil
}

// Backward accumulates gradients of the loss given dLoss/dOutput
// for the batch of the preceding Forward call.
func (e *Evaluator) Backward(dOut []float64) {
	var d = e.head.Backward(dOut)
	e.precision.Round(&d)
	for i := len(e.tower) - 1; i >= 0; i-- {
		d = e.tower[i].Backward(d)
		e.precision.Round(&d)
	}
	e.encoder.Backward(d)
}

// Evaluate scores a single position with running statistics.
func (e *Evaluator) Evaluate(pos board.Position) (float64, error) {
	var training = e.training
	e.training = false
	defer func() { e.training = training }()
	var out, err = e.Forward(ml.MatrixFromRows([][]float64{board.Encode(pos)}))
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func (e *Evaluator) batchNorms() []*BatchNorm {
	var result = make([]*BatchNorm, len(e.tower))
	for i, b := range e.tower {
		result[i] = b.norm
	}
	return result
}
