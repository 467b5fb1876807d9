package ml

// Param is a named tensor owned by a model component.
// Buffers (normalization running statistics) are saved with the
// parameters but never receive gradients.
type Param struct {
	Name   string
	Value  Matrix
	Grad   Matrix
	Buffer bool
	Frozen bool
}

func NewParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: NewMatrix(rows, cols),
		Grad:  NewMatrix(rows, cols),
	}
}

func NewBuffer(name string, rows, cols int) *Param {
	return &Param{
		Name:   name,
		Value:  NewMatrix(rows, cols),
		Buffer: true,
	}
}

func (p *Param) Trainable() bool {
	return !p.Buffer && !p.Frozen
}

func (p *Param) ZeroGrad() {
	p.Grad.Reset()
}

func CountParams(params []*Param, onlyTrainable bool) int {
	var n int
	for _, p := range params {
		if p.Buffer || onlyTrainable && !p.Trainable() {
			continue
		}
		n += len(p.Value.Data)
	}
	return n
}
