package config

import (
	"bytes"
	"io"
	"os"
	"runtime"

	"github.com/ChizhovVadim/OthelloNet/internal/dataset"
	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/ChizhovVadim/OthelloNet/internal/nn"
	"github.com/ChizhovVadim/OthelloNet/internal/train"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Run is the YAML description of a training run.
type Run struct {
	Model    Model    `yaml:"model"`
	Training Training `yaml:"training"`
	Data     Data     `yaml:"data"`
}

type Model struct {
	Width      int    `yaml:"width"`
	Blocks     int    `yaml:"blocks"`
	Head       string `yaml:"head"`
	Activation string `yaml:"activation"`
}

type Training struct {
	Epochs             int      `yaml:"epochs"`
	BatchSize          int      `yaml:"batch_size"`
	LearningRate       float64  `yaml:"learning_rate"`
	WarmupSteps        int      `yaml:"warmup_steps"`
	DecayFraction      float64  `yaml:"decay_fraction"`
	DecayFloor         float64  `yaml:"decay_floor"`
	Seed               uint64   `yaml:"seed"`
	Workers            int      `yaml:"workers"`
	Prefetch           int      `yaml:"prefetch"`
	Loss               string   `yaml:"loss"`
	LossK              float64  `yaml:"loss_k"`
	Precision          string   `yaml:"precision"`
	Freeze             []string `yaml:"freeze"`
	CheckpointDir      string   `yaml:"checkpoint_dir"`
	Resume             bool     `yaml:"resume"`
	ValidationFraction float64  `yaml:"validation_fraction"`
}

type Data struct {
	// Dataset is the directory of the imported record store.
	Dataset string `yaml:"dataset"`
	// Format is the CSV row layout used by import.
	Format string `yaml:"format"`
	// InMemory copies the store into memory before training. Otherwise
	// every sample is read from the store.
	InMemory bool `yaml:"in_memory"`
}

func Default() Run {
	var model = nn.DefaultConfig()
	var training = train.DefaultConfig()
	return Run{
		Model: Model{
			Width:      model.Width,
			Blocks:     model.Blocks,
			Head:       model.Head.String(),
			Activation: model.Activation.String(),
		},
		Training: Training{
			Epochs:        training.Epochs,
			BatchSize:     training.BatchSize,
			LearningRate:  training.LearningRate,
			Workers:       runtime.NumCPU(),
			Prefetch:      training.Prefetch,
			Loss:          training.Loss.String(),
			LossK:         training.LossK,
			Precision:     ml.Float64.String(),
			CheckpointDir: "checkpoints",
		},
		Data: Data{
			Format:   dataset.FormatNega.String(),
			InMemory: true,
		},
	}
}

// Load reads path over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (Run, error) {
	var run = Default()
	var data, err = os.ReadFile(path)
	if err != nil {
		return run, err
	}
	if err := Parse(data, &run); err != nil {
		return run, errors.Wrapf(err, "config %v", path)
	}
	return run, nil
}

func Parse(data []byte, run *Run) error {
	var dec = yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(run); err != nil && err != io.EOF {
		return err
	}
	if _, err := dataset.ParseFormat(run.Data.Format); err != nil {
		return err
	}
	_, _, err := run.Build()
	return err
}

// Build converts the run into the evaluator and trainer configurations.
func (r *Run) Build() (nn.Config, train.Config, error) {
	var model = nn.DefaultConfig()
	model.Width = r.Model.Width
	model.Blocks = r.Model.Blocks
	var err error
	model.Head, err = nn.ParseHeadKind(r.Model.Head)
	if err != nil {
		return model, train.Config{}, err
	}
	model.Activation, err = nn.ParseActivationKind(r.Model.Activation)
	if err != nil {
		return model, train.Config{}, err
	}
	if model.Width < 1 || model.Blocks < 0 {
		return model, train.Config{}, errors.Errorf("invalid model size %dx%d", model.Width, model.Blocks)
	}

	var t = r.Training
	precision, err := ml.ParsePrecision(t.Precision)
	if err != nil {
		return model, train.Config{}, err
	}
	loss, err := train.ParseLoss(t.Loss)
	if err != nil {
		return model, train.Config{}, err
	}
	var config = train.Config{
		Epochs:             t.Epochs,
		BatchSize:          t.BatchSize,
		LearningRate:       t.LearningRate,
		WarmupSteps:        t.WarmupSteps,
		DecayFraction:      t.DecayFraction,
		DecayFloor:         t.DecayFloor,
		Seed:               t.Seed,
		Workers:            t.Workers,
		Prefetch:           t.Prefetch,
		Loss:               loss,
		LossK:              t.LossK,
		Precision:          precision,
		Freeze:             nn.FreezePolicy{Frozen: t.Freeze},
		CheckpointDir:      t.CheckpointDir,
		ValidationFraction: t.ValidationFraction,
	}
	return model, config, nil
}

func (r *Run) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}
