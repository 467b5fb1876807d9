package ml

import (
	"github.com/pkg/errors"
	"strings"
)

// Precision selects the numeric width of activations and gradients.
// Parameters and optimizer moments always stay float64.
type Precision int

const (
	Float64 Precision = iota
	Float32
)

func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(s) {
	case "", "float64", "fp64", "double":
		return Float64, nil
	case "float32", "fp32", "single":
		return Float32, nil
	}
	return Float64, errors.Errorf("unknown precision %q", s)
}

func (p Precision) String() string {
	if p == Float32 {
		return "float32"
	}
	return "float64"
}

func (p Precision) Round(m *Matrix) {
	if p != Float32 {
		return
	}
	for i, v := range m.Data {
		m.Data[i] = float64(float32(v))
	}
}
