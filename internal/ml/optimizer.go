package ml

import "math"

const (
	Beta1   = 0.9
	Beta2   = 0.999
	Epsilon = 1e-8
)

type Gradient struct {
	M1 []float64
	M2 []float64
}

// AdamState is the serializable part of the optimizer.
type AdamState struct {
	Step    int
	Moments map[string]Gradient
}

// Adam applies bias-corrected Adam updates to trainable parameters.
// Frozen parameters and buffers are skipped and keep no moments.
type Adam struct {
	Schedule Schedule
	step     int
	moments  map[string]*Gradient
}

func NewAdam(schedule Schedule) *Adam {
	return &Adam{
		Schedule: schedule,
		moments:  make(map[string]*Gradient),
	}
}

func (opt *Adam) StepCount() int {
	return opt.step
}

func (opt *Adam) LearningRate() float64 {
	return opt.Schedule.Rate(opt.step + 1)
}

// Step consumes the accumulated gradients and resets them.
func (opt *Adam) Step(params []*Param) {
	opt.step++
	var lr = opt.Schedule.Rate(opt.step)
	var bc1 = 1 - math.Pow(Beta1, float64(opt.step))
	var bc2 = 1 - math.Pow(Beta2, float64(opt.step))
	for _, p := range params {
		if !p.Trainable() {
			continue
		}
		var g = opt.moments[p.Name]
		if g == nil {
			g = &Gradient{
				M1: make([]float64, len(p.Value.Data)),
				M2: make([]float64, len(p.Value.Data)),
			}
			opt.moments[p.Name] = g
		}
		for i, grad := range p.Grad.Data {
			g.M1[i] = g.M1[i]*Beta1 + grad*(1-Beta1)
			g.M2[i] = g.M2[i]*Beta2 + grad*grad*(1-Beta2)
			var m = g.M1[i] / bc1
			var v = g.M2[i] / bc2
			p.Value.Data[i] -= lr * m / (math.Sqrt(v) + Epsilon)
		}
		p.ZeroGrad()
	}
}

func (opt *Adam) State() AdamState {
	var state = AdamState{
		Step:    opt.step,
		Moments: make(map[string]Gradient, len(opt.moments)),
	}
	for name, g := range opt.moments {
		state.Moments[name] = Gradient{
			M1: append([]float64(nil), g.M1...),
			M2: append([]float64(nil), g.M2...),
		}
	}
	return state
}

func (opt *Adam) LoadState(state AdamState) {
	opt.step = state.Step
	opt.moments = make(map[string]*Gradient, len(state.Moments))
	for name, g := range state.Moments {
		opt.moments[name] = &Gradient{
			M1: append([]float64(nil), g.M1...),
			M2: append([]float64(nil), g.M2...),
		}
	}
}
