package ml

type Schedule interface {
	Rate(step int) float64
}

type ConstantSchedule float64

func (s ConstantSchedule) Rate(step int) float64 { return float64(s) }

// WarmupDecaySchedule ramps the rate linearly from zero over Warmup steps,
// holds it, and decays it linearly to Floor*Base over the last Decay steps.
type WarmupDecaySchedule struct {
	Base   float64
	Warmup int
	Decay  int
	Total  int
	Floor  float64
}

func (s *WarmupDecaySchedule) Rate(step int) float64 {
	if s.Warmup > 0 && step <= s.Warmup {
		return s.Base * float64(step) / float64(s.Warmup)
	}
	if s.Decay > 0 && s.Total > 0 {
		var decayStart = s.Total - s.Decay
		if step > decayStart {
			var progress = float64(step-decayStart) / float64(s.Decay)
			if progress > 1 {
				progress = 1
			}
			return s.Base * (1 - progress*(1-s.Floor))
		}
	}
	return s.Base
}
