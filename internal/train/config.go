package train

import (
	"runtime"
	"strings"

	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/ChizhovVadim/OthelloNet/internal/nn"
	"github.com/pkg/errors"
)

type Loss int

const (
	// WeightedLoss emphasizes close positions with sharpness LossK,
	// see ml.WeightedMSECost.
	WeightedLoss Loss = iota
	MSELoss
)

func (l Loss) String() string {
	if l == MSELoss {
		return "mse"
	}
	return "weighted"
}

func ParseLoss(s string) (Loss, error) {
	switch strings.ToLower(s) {
	case "", "weighted":
		return WeightedLoss, nil
	case "mse":
		return MSELoss, nil
	}
	return WeightedLoss, errors.Errorf("unknown loss %q", s)
}

// Config holds everything a training run depends on.
type Config struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	// WarmupSteps ramps the learning rate up from zero.
	WarmupSteps int
	// DecayFraction is the share of all steps over which the rate decays
	// linearly to DecayFloor*LearningRate. Zero disables decay.
	DecayFraction      float64
	DecayFloor         float64
	Seed               uint64
	Workers            int
	Prefetch           int
	Loss               Loss
	LossK              float64
	Precision          ml.Precision
	Freeze             nn.FreezePolicy
	CheckpointDir      string
	ValidationFraction float64
}

func DefaultConfig() Config {
	return Config{
		Epochs:       20,
		BatchSize:    4096,
		LearningRate: 2e-4,
		LossK:        ml.DefaultCloseGameK,
		Workers:      runtime.NumCPU(),
		Prefetch:     4,
	}
}

func (c *Config) validate() error {
	if c.Epochs < 1 {
		return errors.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize < 2 {
		return errors.Errorf("batch size must be at least 2, got %d", c.BatchSize)
	}
	if !(c.LearningRate > 0) {
		return errors.Errorf("learning rate must be positive, got %v", c.LearningRate)
	}
	if c.ValidationFraction < 0 || c.ValidationFraction >= 1 {
		return errors.Errorf("validation fraction must be in [0, 1), got %v", c.ValidationFraction)
	}
	if c.DecayFraction < 0 || c.DecayFraction > 1 {
		return errors.Errorf("decay fraction must be in [0, 1], got %v", c.DecayFraction)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Prefetch < 1 {
		c.Prefetch = 1
	}
	return nil
}

func (c *Config) cost() ml.IModelCost {
	if c.Loss == MSELoss {
		return &ml.MSECost{}
	}
	return &ml.WeightedMSECost{K: c.LossK}
}

func (c *Config) schedule(stepsPerEpoch int) ml.Schedule {
	if c.WarmupSteps == 0 && c.DecayFraction == 0 {
		return ml.ConstantSchedule(c.LearningRate)
	}
	var total = c.Epochs * stepsPerEpoch
	return &ml.WarmupDecaySchedule{
		Base:   c.LearningRate,
		Warmup: c.WarmupSteps,
		Decay:  int(float64(total) * c.DecayFraction),
		Total:  total,
		Floor:  c.DecayFloor,
	}
}
