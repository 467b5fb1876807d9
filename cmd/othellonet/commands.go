package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/ChizhovVadim/OthelloNet/internal/checkpoint"
	"github.com/ChizhovVadim/OthelloNet/internal/config"
	"github.com/ChizhovVadim/OthelloNet/internal/dataset"
	"github.com/ChizhovVadim/OthelloNet/internal/export"
	"github.com/ChizhovVadim/OthelloNet/internal/nn"
	"github.com/ChizhovVadim/OthelloNet/internal/quality"
	"github.com/ChizhovVadim/OthelloNet/internal/train"
	"github.com/ChizhovVadim/OthelloNet/pkg/model"
	"github.com/ChizhovVadim/OthelloNet/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

func importCommand(fs *flag.FlagSet) commandFunc {
	var (
		configPath = fs.String("config", "", "YAML run configuration supplying the data section")
		input      = fs.String("csv", "-", "CSV file to import, - for stdin")
		format     = fs.String("format", "nega", "Row layout (nega, ply)")
		dir        = fs.String("dataset", "dataset", "Dataset store directory")
	)
	return func(ctx context.Context) error {
		var data = config.Data{Dataset: *dir, Format: *format}
		if *configPath != "" {
			var run, err = config.Load(*configPath)
			if err != nil {
				return err
			}
			data = run.Data
			fs.Visit(func(fl *flag.Flag) {
				switch fl.Name {
				case "format":
					data.Format = *format
				case "dataset":
					data.Dataset = *dir
				}
			})
			if data.Dataset == "" {
				data.Dataset = *dir
			}
		}
		var f, err = dataset.ParseFormat(data.Format)
		if err != nil {
			return err
		}
		var r io.Reader = os.Stdin
		if *input != "-" {
			file, err := os.Open(*input)
			if err != nil {
				return err
			}
			defer file.Close()
			r = file
		}
		store, err := dataset.OpenStore(data.Dataset)
		if err != nil {
			return err
		}
		defer store.Close()
		_, err = dataset.Import(ctx, r, f, store)
		return err
	}
}

func trainCommand(fs *flag.FlagSet) commandFunc {
	var (
		configPath  = fs.String("config", "", "YAML run configuration")
		dir         = fs.String("dataset", "", "Dataset store directory")
		epochs      = fs.Int("epochs", 0, "Number of epochs")
		batchSize   = fs.Int("batch", 0, "Batch size")
		lr          = fs.Float64("lr", 0, "Learning rate")
		seed        = fs.Uint64("seed", 0, "Random seed")
		precision   = fs.String("precision", "", "Activation precision (float64, float32)")
		checkpoints = fs.String("checkpoints", "", "Checkpoint directory")
		resume      = fs.Bool("resume", false, "Resume from the latest checkpoint")
		initPath    = fs.String("init", "", "Initialize parameters from a checkpoint")
		inMemory    = fs.Bool("in-memory", true, "Load the dataset into memory instead of reading the store per sample")
		freeze      listFlag
	)
	fs.Var(&freeze, "freeze", "Comma separated components to freeze (encoder, tower, tower.N, head)")
	return func(ctx context.Context) error {
		var run = config.Default()
		if *configPath != "" {
			var err error
			run, err = config.Load(*configPath)
			if err != nil {
				return err
			}
		}
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "dataset":
				run.Data.Dataset = *dir
			case "epochs":
				run.Training.Epochs = *epochs
			case "batch":
				run.Training.BatchSize = *batchSize
			case "lr":
				run.Training.LearningRate = *lr
			case "seed":
				run.Training.Seed = *seed
			case "precision":
				run.Training.Precision = *precision
			case "checkpoints":
				run.Training.CheckpointDir = *checkpoints
			case "resume":
				run.Training.Resume = *resume
			case "freeze":
				run.Training.Freeze = freeze
			case "in-memory":
				run.Data.InMemory = *inMemory
			}
		})
		modelConfig, trainConfig, err := run.Build()
		if err != nil {
			return err
		}
		if run.Data.Dataset == "" {
			return errors.New("dataset not specified")
		}

		records, closeRecords, err := openSource(run.Data.Dataset, run.Data.InMemory)
		if err != nil {
			return err
		}
		defer closeRecords()
		var evaluator = nn.NewEvaluator(modelConfig, rand.New(rand.NewSource(trainConfig.Seed)))
		if *initPath != "" {
			c, err := checkpoint.Load(*initPath)
			if err != nil {
				return err
			}
			if err := evaluator.LoadStateDict(c.Params); err != nil {
				return errors.Wrapf(err, "init from %v", *initPath)
			}
			log.Info().Str("path", *initPath).Msg("initialized parameters")
		}

		trainer, err := train.NewTrainer(trainConfig, evaluator, dataset.NewSampleStore(records))
		if err != nil {
			return err
		}
		if run.Training.Resume {
			if _, err := trainer.ResumeLatest(); err != nil {
				return err
			}
		}
		_, err = trainer.Run(ctx)
		return err
	}
}

// openSource opens the record store in dir. In memory mode the records
// are copied out and the store is closed right away.
func openSource(dir string, inMemory bool) (dataset.Source, func() error, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, err
	}
	var store, err = dataset.OpenStore(dir)
	if err != nil {
		return nil, nil, err
	}
	if !inMemory {
		log.Info().Int("records", store.Len()).Str("dataset", dir).Msg("opened dataset")
		return store, store.Close, nil
	}
	defer store.Close()
	records, err := store.LoadAll()
	if err != nil {
		return nil, nil, err
	}
	log.Info().Int("records", len(records)).Str("dataset", dir).Msg("loaded dataset")
	return dataset.MemorySource(records), func() error { return nil }, nil
}

func averageCommand(fs *flag.FlagSet) commandFunc {
	var (
		dir      = fs.String("dir", "", "Average every checkpoint in this directory")
		out      = fs.String("out", "", "Averaged checkpoint path")
		artifact = fs.String("artifact", "", "Also export the average as an artifact")
	)
	return func(ctx context.Context) error {
		var avg *checkpoint.Checkpoint
		var err error
		if *dir != "" {
			avg, err = checkpoint.AverageDir(ctx, *dir)
		} else {
			avg, err = checkpoint.AverageFiles(ctx, fs.Args())
		}
		if err != nil {
			return err
		}
		if *out != "" {
			if err := checkpoint.Save(*out, avg); err != nil {
				return err
			}
			log.Info().Str("path", *out).Msg("saved averaged checkpoint")
		}
		if *artifact != "" {
			return exportCheckpoint(avg, *artifact)
		}
		if *out == "" {
			return errors.New("nothing to write: set -out or -artifact")
		}
		return nil
	}
}

func exportCommand(fs *flag.FlagSet) commandFunc {
	var (
		path = fs.String("checkpoint", "", "Checkpoint to export")
		out  = fs.String("out", "model.otnn", "Artifact path")
	)
	return func(ctx context.Context) error {
		var c, err = checkpoint.Load(*path)
		if err != nil {
			return err
		}
		return exportCheckpoint(c, *out)
	}
}

func exportCheckpoint(c *checkpoint.Checkpoint, path string) error {
	var evaluator = nn.NewEvaluator(c.Model, nil)
	if err := evaluator.LoadStateDict(c.Params); err != nil {
		return err
	}
	var example = board.Encode(board.Position{Own: 0x0000000810000000, Opponent: 0x0000001008000000})
	return export.ExportFile(evaluator, example, path)
}

func evalCommand(fs *flag.FlagSet) commandFunc {
	var (
		path          = fs.String("model", "model.otnn", "Artifact path")
		own, opponent bitboardFlag
	)
	fs.Var(&own, "own", "Disks of the side to move")
	fs.Var(&opponent, "opponent", "Disks of the other side")
	return func(ctx context.Context) error {
		var pos = board.Position{Own: uint64(own), Opponent: uint64(opponent)}
		if err := pos.Validate(); err != nil {
			return err
		}
		var network, err = model.Load(*path)
		if err != nil {
			return err
		}
		var value = network.Evaluate(pos.Own, pos.Opponent)
		fmt.Printf("%v\nvalue %.4f centidisks %d\n", pos, value, model.Centidisks(value))
		return nil
	}
}

func qualityCommand(fs *flag.FlagSet) commandFunc {
	var (
		path = fs.String("model", "model.otnn", "Artifact path")
		dir  = fs.String("dataset", "", "Dataset store directory")
	)
	return func(ctx context.Context) error {
		var network, err = model.Load(*path)
		if err != nil {
			return err
		}
		records, closeRecords, err := openSource(*dir, false)
		if err != nil {
			return err
		}
		defer closeRecords()
		report, err := quality.RunQuality(ctx, network, records)
		if err != nil {
			return err
		}
		fmt.Printf("%+v\n", report)
		return nil
	}
}

func queryCommand(fs *flag.FlagSet) commandFunc {
	var (
		addr          = fs.String("addr", "localhost:35326", "Server address")
		version       = fs.String("protocol", "v2", "Parameter layout (v0, v1, v2)")
		remaining     = fs.Duration("time", 60*time.Second, "Remaining game time")
		timeout       = fs.Duration("timeout", 0, "Request timeout, 0 for none")
		params        protocol.SearchParams
		own, opponent bitboardFlag
	)
	fs.Var(&own, "own", "Disks of the side to move")
	fs.Var(&opponent, "opponent", "Disks of the other side")
	fs.IntVar(&params.EndDepth, "end", 18, "Endgame solve depth")
	fs.IntVar(&params.MidDepth, "mid", 5, "Midgame search depth")
	fs.BoolVar(&params.SolveEndExact, "exact", true, "Solve the endgame exactly")
	fs.BoolVar(&params.SolveEndAdaptive, "adaptive", false, "Adaptive endgame (v1 only)")
	fs.BoolVar(&params.UseBook, "book", true, "Use the opening book")
	fs.BoolVar(&params.AdjustTime, "adjust", false, "Adjust settings to the remaining time")
	return func(ctx context.Context) error {
		var v, err = protocol.ParseVersion(*version)
		if err != nil {
			return err
		}
		layout, err := protocol.LayoutFor(v)
		if err != nil {
			return err
		}
		if *timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, *timeout)
			defer cancel()
		}
		var client = protocol.NewClient(*addr, layout)
		resp, err := client.Evaluate(ctx, protocol.Query{
			Own:       uint64(own),
			Opponent:  uint64(opponent),
			Remaining: *remaining,
			Params:    params,
		})
		if err != nil {
			return err
		}
		var move = "pass"
		if resp.HasMove() {
			move = board.SquareName(int(resp.Move))
		}
		fmt.Printf("move %v eval %d\n", move, resp.Eval)
		return nil
	}
}

func serveCommand(fs *flag.FlagSet) commandFunc {
	var (
		addr    = fs.String("addr", ":35326", "Listen address")
		path    = fs.String("model", "model.otnn", "Artifact path")
		version = fs.String("protocol", "v2", "Parameter layout (v0, v1, v2)")
		ioTime  = fs.Duration("io-timeout", 10*time.Second, "Per connection I/O timeout")
	)
	return func(ctx context.Context) error {
		var v, err = protocol.ParseVersion(*version)
		if err != nil {
			return err
		}
		layout, err := protocol.LayoutFor(v)
		if err != nil {
			return err
		}
		network, err := model.Load(*path)
		if err != nil {
			return err
		}
		var server = &protocol.Server{
			Layout:    layout,
			Engine:    &staticEngine{network: network},
			IOTimeout: *ioTime,
		}
		return server.ListenAndServe(ctx, *addr)
	}
}
