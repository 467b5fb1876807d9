package model

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

var ErrFormat = errors.New("model: unsupported artifact format")

type Head uint8

const (
	HeadDual Head = iota
	HeadScalar
)

func (h Head) Outputs() int {
	if h == HeadScalar {
		return 1
	}
	return 2 * SquareCount
}

const (
	SquareCount = 64
	InputSize   = 2 * SquareCount
)

// Layer is a dense layer with Out*In weights stored row by row
// (Weight[o*In+i]). Bias is empty for layers without bias.
type Layer struct {
	In     int
	Out    int
	Weight []float32
	Bias   []float32
}

// Norm holds batch-normalization parameters and running statistics.
type Norm struct {
	Gamma []float32
	Beta  []float32
	Mean  []float32
	Var   []float32
}

type Block struct {
	Linear1 Layer
	Linear2 Layer
	Norm    Norm
}

// Artifact is the frozen evaluator: encoder, residual tower and head.
type Artifact struct {
	Inputs     int
	Width      int
	Head       Head
	LeakySlope float32
	Encoder    Layer
	Tower      []Block
	Output     Layer
}

func (a *Artifact) Validate() error {
	if a.Inputs != InputSize {
		return errors.Wrapf(ErrFormat, "input size %d, want %d", a.Inputs, InputSize)
	}
	if a.Head != HeadDual && a.Head != HeadScalar {
		return errors.Wrapf(ErrFormat, "unknown head %d", a.Head)
	}
	if err := a.Encoder.check("encoder", a.Inputs, a.Width, true); err != nil {
		return err
	}
	for i := range a.Tower {
		var b = &a.Tower[i]
		if err := b.Linear1.check("linear1", a.Width, a.Width, true); err != nil {
			return errors.Wrapf(err, "block %d", i)
		}
		if err := b.Linear2.check("linear2", a.Width, a.Width, false); err != nil {
			return errors.Wrapf(err, "block %d", i)
		}
		for _, v := range [][]float32{b.Norm.Gamma, b.Norm.Beta, b.Norm.Mean, b.Norm.Var} {
			if len(v) != a.Width {
				return errors.Wrapf(ErrFormat, "block %d: norm size %d, want %d", i, len(v), a.Width)
			}
		}
	}
	return a.Output.check("head", a.Width, a.Head.Outputs(), true)
}

func (l *Layer) check(name string, in, out int, bias bool) error {
	if l.In != in || l.Out != out || len(l.Weight) != in*out {
		return errors.Wrapf(ErrFormat, "%v: %dx%d layer with %d weights, want %dx%d",
			name, l.Out, l.In, len(l.Weight), out, in)
	}
	var biasSize = 0
	if bias {
		biasSize = out
	}
	if len(l.Bias) != biasSize {
		return errors.Wrapf(ErrFormat, "%v: %d biases, want %d", name, len(l.Bias), biasSize)
	}
	return nil
}

// Binary specification for the artifact file:
// - All the data is stored in little-endian layout
// - Weights are written row by row, one row per output
// - The magic number/version consists of 4 bytes:
//   - 79 (which is the ASCII code for O), uint8
//   - 84 (which is the ASCII code for T), uint8
//   - 1 The major part of the current version number, uint8
//   - 0 The minor part of the current version number, uint8
//
// - 4 bytes (int32) input size, 4 bytes (int32) width, 4 bytes (int32) block count
// - 1 byte head kind (0 dual, 1 scalar), 4 bytes (float32) leaky slope
// - encoder weights and biases
// - per block: linear1 weights and biases, linear2 weights,
//   norm gamma, beta, running mean, running variance
// - head weights and biases
// All values after the header are float32.
var header = [4]byte{'O', 'T', 1, 0}

func (a *Artifact) Write(w io.Writer) error {
	if err := a.Validate(); err != nil {
		return err
	}
	var bw = bufio.NewWriter(w)
	var put = func(v interface{}) error {
		return binary.Write(bw, binary.LittleEndian, v)
	}
	var values = []interface{}{
		header,
		uint32(a.Inputs), uint32(a.Width), uint32(len(a.Tower)),
		uint8(a.Head), a.LeakySlope,
		a.Encoder.Weight, a.Encoder.Bias,
	}
	for i := range a.Tower {
		var b = &a.Tower[i]
		values = append(values,
			b.Linear1.Weight, b.Linear1.Bias, b.Linear2.Weight,
			b.Norm.Gamma, b.Norm.Beta, b.Norm.Mean, b.Norm.Var)
	}
	values = append(values, a.Output.Weight, a.Output.Bias)
	for _, v := range values {
		if err := put(v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

const maxWidth = 1 << 14

func ReadArtifact(r io.Reader) (*Artifact, error) {
	var br = bufio.NewReader(r)
	var err error
	var get = func(v interface{}) {
		if err == nil {
			err = binary.Read(br, binary.LittleEndian, v)
		}
	}
	var magic [4]byte
	get(&magic)
	if err != nil {
		return nil, err
	}
	if magic != header {
		return nil, errors.Wrapf(ErrFormat, "header %v", magic)
	}
	var inputs, width, blocks uint32
	var head uint8
	var a = &Artifact{}
	get(&inputs)
	get(&width)
	get(&blocks)
	get(&head)
	get(&a.LeakySlope)
	if err != nil {
		return nil, err
	}
	if inputs != InputSize || width == 0 || width > maxWidth || blocks > 1024 {
		return nil, errors.Wrapf(ErrFormat, "topology %d/%d/%d", inputs, width, blocks)
	}
	a.Inputs = int(inputs)
	a.Width = int(width)
	a.Head = Head(head)
	if a.Head != HeadDual && a.Head != HeadScalar {
		return nil, errors.Wrapf(ErrFormat, "unknown head %d", head)
	}

	var layer = func(in, out int, bias bool) Layer {
		var l = Layer{In: in, Out: out, Weight: make([]float32, in*out)}
		get(l.Weight)
		if bias {
			l.Bias = make([]float32, out)
			get(l.Bias)
		}
		return l
	}
	var vector = func() []float32 {
		var v = make([]float32, a.Width)
		get(v)
		return v
	}

	a.Encoder = layer(a.Inputs, a.Width, true)
	a.Tower = make([]Block, blocks)
	for i := range a.Tower {
		var b = &a.Tower[i]
		b.Linear1 = layer(a.Width, a.Width, true)
		b.Linear2 = layer(a.Width, a.Width, false)
		b.Norm = Norm{Gamma: vector(), Beta: vector(), Mean: vector(), Var: vector()}
	}
	a.Output = layer(a.Width, a.Head.Outputs(), true)
	if err != nil {
		return nil, errors.Wrap(err, "read artifact tensors")
	}
	return a, nil
}

// Save writes the artifact to path. A failed save leaves no file behind.
func (a *Artifact) Save(path string) error {
	var tmp = path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = a.Write(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := ReadArtifact(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %v", path)
	}
	return a, nil
}
