package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Average returns the elementwise mean of the parameters of all
// checkpoints. Every checkpoint must have the same parameter names and
// shapes; otherwise nothing is returned.
func Average(checkpoints []*Checkpoint) (map[string]ml.Matrix, error) {
	if len(checkpoints) == 0 {
		return nil, ErrEmpty
	}
	var first = checkpoints[0].Params
	for i, c := range checkpoints[1:] {
		if len(c.Params) != len(first) {
			return nil, errors.Wrapf(ErrSchemaMismatch, "checkpoint %d has %d tensors, want %d",
				i+1, len(c.Params), len(first))
		}
		for name, m := range first {
			var other, ok = c.Params[name]
			if !ok {
				return nil, errors.Wrapf(ErrSchemaMismatch, "checkpoint %d misses %v", i+1, name)
			}
			if !m.SameShape(&other) {
				return nil, errors.Wrapf(ErrSchemaMismatch, "checkpoint %d: %v is %dx%d, want %dx%d",
					i+1, name, other.Rows, other.Cols, m.Rows, m.Cols)
			}
		}
	}

	var result = make(map[string]ml.Matrix, len(first))
	var n = float64(len(checkpoints))
	for name, m := range first {
		var sum = ml.NewMatrix(m.Rows, m.Cols)
		for _, c := range checkpoints {
			var t = c.Params[name]
			sum.AddMatrix(&t)
		}
		for i := range sum.Data {
			sum.Data[i] /= n
		}
		result[name] = sum
	}
	return result, nil
}

// LoadAll reads checkpoints concurrently, keeping the order of paths.
func LoadAll(ctx context.Context, paths []string) ([]*Checkpoint, error) {
	var result = make([]*Checkpoint, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var c, err = Load(path)
			if err != nil {
				return err
			}
			result[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// AverageFiles averages checkpoint files into an epoch-0 checkpoint with
// the model config of the first file and no optimizer state.
func AverageFiles(ctx context.Context, paths []string) (*Checkpoint, error) {
	if len(paths) == 0 {
		return nil, errors.Wrap(ErrEmpty, "no checkpoint files")
	}
	var checkpoints, err = LoadAll(ctx, paths)
	if err != nil {
		return nil, err
	}
	for i, c := range checkpoints[1:] {
		if c.Model != checkpoints[0].Model {
			return nil, errors.Wrapf(ErrSchemaMismatch, "%v: model %+v, want %+v",
				paths[i+1], c.Model, checkpoints[0].Model)
		}
	}
	params, err := Average(checkpoints)
	if err != nil {
		return nil, err
	}
	log.Info().Int("count", len(paths)).Msg("averaged checkpoints")
	return &Checkpoint{
		Model:  checkpoints[0].Model,
		Params: params,
	}, nil
}

func AverageDir(ctx context.Context, dir string) (*Checkpoint, error) {
	var paths, err = List(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Wrap(ErrEmpty, dir)
	}
	return AverageFiles(ctx, paths)
}

var fileNameRe = regexp.MustCompile(`^chpt-(\d+)\.ckpt$`)

// List returns the checkpoint files in dir ordered by epoch.
func List(dir string) ([]string, error) {
	var entries, err = os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type item struct {
		epoch int
		path  string
	}
	var items []item
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		var m = fileNameRe.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		var epoch, _ = strconv.Atoi(m[1])
		items = append(items, item{epoch, filepath.Join(dir, de.Name())})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].epoch < items[j].epoch })
	var result = make([]string, len(items))
	for i := range items {
		result[i] = items[i].path
	}
	return result, nil
}

// Latest returns the checkpoint with the highest epoch in dir.
func Latest(dir string) (string, bool, error) {
	var paths, err = List(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(paths) == 0 {
		return "", false, nil
	}
	return paths[len(paths)-1], true, nil
}
