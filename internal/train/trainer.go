package train

import (
	"context"
	"math"
	"os"
	"sync"
	"time"

	"github.com/ChizhovVadim/OthelloNet/internal/checkpoint"
	"github.com/ChizhovVadim/OthelloNet/internal/dataset"
	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/ChizhovVadim/OthelloNet/internal/nn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

var ErrRunning = errors.New("train: trainer is already running")

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// EpochStats summarizes one finished epoch.
type EpochStats struct {
	Epoch          int
	Loss           float64
	ValidationLoss float64
	Batches        int
	Samples        int
	Elapsed        time.Duration
	Checkpoint     string
}

type Trainer struct {
	config    Config
	model     *nn.Evaluator
	samples   *dataset.SampleStore
	cost      ml.IModelCost
	optimizer *ml.Adam

	training   []int
	validation []int
	batches    int

	mu    sync.Mutex
	state State
	epoch int
}

// NewTrainer applies the freeze policy and splits off the validation
// set. Epoch numbering starts at 1 unless Resume is called.
func NewTrainer(config Config, model *nn.Evaluator, samples *dataset.SampleStore) (*Trainer, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := config.Freeze.Apply(model); err != nil {
		return nil, err
	}
	model.SetPrecision(config.Precision)

	var t = &Trainer{
		config:  config,
		model:   model,
		samples: samples,
		cost:    config.cost(),
	}
	t.split()
	t.batches = len(splitBatches(t.training, config.BatchSize))
	if t.batches == 0 {
		return nil, errors.Errorf("dataset of %d samples has no training batch of size >= 2", samples.Len())
	}
	t.optimizer = ml.NewAdam(config.schedule(t.batches))
	return t, nil
}

func (t *Trainer) split() {
	var rnd = rand.New(rand.NewSource(t.config.Seed))
	var indices = rnd.Perm(t.samples.Len())
	var n = int(float64(len(indices)) * t.config.ValidationFraction)
	t.validation = indices[:n]
	t.training = indices[n:]
}

func (t *Trainer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Epoch returns the last completed epoch.
func (t *Trainer) Epoch() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// Resume restores parameters and optimizer state. Training continues
// with the epoch after the checkpoint's.
func (t *Trainer) Resume(c *checkpoint.Checkpoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Running {
		return ErrRunning
	}
	if c.Model != t.model.Config() {
		return errors.Wrapf(checkpoint.ErrSchemaMismatch, "checkpoint model %+v, trainer model %+v",
			c.Model, t.model.Config())
	}
	if err := t.model.LoadStateDict(c.Params); err != nil {
		return err
	}
	t.optimizer.LoadState(c.Optimizer)
	t.epoch = c.Epoch
	return nil
}

// ResumeLatest resumes from the newest checkpoint in the checkpoint
// directory, if there is one.
func (t *Trainer) ResumeLatest() (bool, error) {
	if t.config.CheckpointDir == "" {
		return false, nil
	}
	var path, ok, err = checkpoint.Latest(t.config.CheckpointDir)
	if err != nil || !ok {
		return false, err
	}
	c, err := checkpoint.Load(path)
	if err != nil {
		return false, err
	}
	if err := t.Resume(c); err != nil {
		return false, err
	}
	log.Info().Str("path", path).Int("epoch", c.Epoch).Msg("resumed")
	return true, nil
}

// Run trains the remaining epochs and returns their statistics.
// A canceled context stops training before the next batch; the last
// checkpoint stays the resume point.
func (t *Trainer) Run(ctx context.Context) ([]EpochStats, error) {
	t.mu.Lock()
	if t.state == Running {
		t.mu.Unlock()
		return nil, ErrRunning
	}
	t.state = Running
	var first = t.epoch + 1
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.state = Idle
		t.mu.Unlock()
	}()

	if t.config.CheckpointDir != "" && first <= t.config.Epochs {
		if err := os.MkdirAll(t.config.CheckpointDir, os.ModePerm); err != nil {
			return nil, err
		}
		var path = checkpoint.Path(t.config.CheckpointDir, first)
		if _, err := os.Stat(path); err == nil {
			return nil, errors.Wrapf(checkpoint.ErrExists, "%v already holds epoch %d, use -resume or another directory", path, first)
		}
	}

	var params = t.model.Params()
	log.Info().
		Int("samples", len(t.training)).
		Int("validation", len(t.validation)).
		Int("params", ml.CountParams(params, false)).
		Int("trainable", ml.CountParams(params, true)).
		Str("frozen", t.config.Freeze.String()).
		Str("loss", t.config.Loss.String()).
		Str("precision", t.config.Precision.String()).
		Int("from_epoch", first).
		Int("epochs", t.config.Epochs).
		Msg("train started")

	var result []EpochStats
	for epoch := first; epoch <= t.config.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var stats, err = t.runEpoch(ctx, epoch)
		if err != nil {
			return result, errors.Wrapf(err, "epoch %d", epoch)
		}
		result = append(result, stats)
		t.mu.Lock()
		t.epoch = epoch
		t.mu.Unlock()
	}
	log.Info().Msg("train finished")
	return result, nil
}

func (t *Trainer) runEpoch(ctx context.Context, epoch int) (EpochStats, error) {
	var start = time.Now()
	var rnd = rand.New(rand.NewSource(batchSeed(t.config.Seed, epoch, -1)))
	var order = make([]int, len(t.training))
	copy(order, t.training)
	rnd.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	var stats = EpochStats{Epoch: epoch}
	var totalLoss float64
	t.model.SetTraining(true)
	var err = prefetch(ctx, t.samples, splitBatches(order, t.config.BatchSize),
		t.config.Seed, epoch, t.config.Workers, t.config.Prefetch,
		func(b *batch) error {
			var loss, err = t.step(b)
			if err != nil {
				return err
			}
			totalLoss += loss * float64(len(b.labels))
			stats.Batches++
			stats.Samples += len(b.labels)
			return nil
		})
	t.model.SetTraining(false)
	if err != nil {
		return stats, err
	}
	stats.Loss = totalLoss / float64(stats.Samples)

	if len(t.validation) != 0 {
		stats.ValidationLoss, err = t.validate()
		if err != nil {
			return stats, err
		}
	}

	if t.config.CheckpointDir != "" {
		stats.Checkpoint = checkpoint.Path(t.config.CheckpointDir, epoch)
		err = checkpoint.Save(stats.Checkpoint, &checkpoint.Checkpoint{
			Epoch:     epoch,
			Model:     t.model.Config(),
			Params:    t.model.StateDict(),
			Optimizer: t.optimizer.State(),
		})
		if err != nil {
			return stats, err
		}
	}
	stats.Elapsed = time.Since(start)

	var event = log.Info()
	if math.IsNaN(stats.Loss) || math.IsInf(stats.Loss, 0) {
		event = log.Error()
	}
	event.Int("epoch", epoch).
		Float64("loss", stats.Loss).
		Float64("validation_loss", stats.ValidationLoss).
		Float64("lr", t.optimizer.LearningRate()).
		Dur("elapsed", stats.Elapsed).
		Str("checkpoint", stats.Checkpoint).
		Msg("finished epoch")
	return stats, nil
}

// step runs one optimizer update and returns the mean batch loss.
func (t *Trainer) step(b *batch) (float64, error) {
	t.model.ZeroGrad()
	var predicted, err = t.model.Forward(b.input)
	if err != nil {
		return 0, err
	}
	var n = float64(len(predicted))
	var loss float64
	var dOut = make([]float64, len(predicted))
	for i, p := range predicted {
		loss += t.cost.Cost(p, b.labels[i])
		dOut[i] = t.cost.CostPrime(p, b.labels[i]) / n
	}
	t.model.Backward(dOut)
	t.optimizer.Step(t.model.Params())
	return loss / n, nil
}

// validate computes the mean loss over the validation set in
// evaluation mode without augmentation.
func (t *Trainer) validate() (float64, error) {
	var total float64
	for _, indices := range chunks(t.validation, t.config.BatchSize) {
		var input = ml.NewMatrix(len(indices), t.model.Config().Inputs)
		var labels = make([]float64, len(indices))
		for row, index := range indices {
			var sample, err = t.samples.GetTransformed(index, 0)
			if err != nil {
				return 0, err
			}
			for col, v := range sample.Features {
				input.Set(row, col, v)
			}
			labels[row] = sample.Label
		}
		var predicted, err = t.model.Forward(input)
		if err != nil {
			return 0, err
		}
		for i, p := range predicted {
			total += t.cost.Cost(p, labels[i])
		}
	}
	return total / float64(len(t.validation)), nil
}

func chunks(indices []int, size int) [][]int {
	var result [][]int
	for start := 0; start < len(indices); start += size {
		result = append(result, indices[start:min(start+size, len(indices))])
	}
	return result
}
