package ml

import "math"

type IActivationFn interface {
	Sigma(x float64) float64
	SigmaPrime(x float64) float64
}

type ReLuActivation struct{}

func (*ReLuActivation) Sigma(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func (*ReLuActivation) SigmaPrime(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

const DefaultLeakySlope = 0.01

type LeakyReLuActivation struct {
	Slope float64
}

func (a *LeakyReLuActivation) Sigma(x float64) float64 {
	if x > 0 {
		return x
	}
	return a.Slope * x
}

func (a *LeakyReLuActivation) SigmaPrime(x float64) float64 {
	if x > 0 {
		return 1
	}
	return a.Slope
}

type SigmoidActivation struct{}

func (s *SigmoidActivation) Sigma(x float64) float64 {
	return Sigmoid(x)
}

func (s *SigmoidActivation) SigmaPrime(x float64) float64 {
	var y = s.Sigma(x)
	return y * (1 - y)
}

type TanhActivation struct{}

func (*TanhActivation) Sigma(x float64) float64 {
	return math.Tanh(x)
}

func (*TanhActivation) SigmaPrime(x float64) float64 {
	var y = math.Tanh(x)
	return 1 - y*y
}
