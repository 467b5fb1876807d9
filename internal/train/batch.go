package train

import (
	"context"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/ChizhovVadim/OthelloNet/internal/dataset"
	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

type batch struct {
	index  int
	input  ml.Matrix
	labels []float64
}

type batchJob struct {
	index   int
	seed    uint64
	indices []int
	out     chan *batch
}

// splitBatches cuts indices into batches of size batchSize. A trailing
// batch of a single sample cannot be normalized and is dropped.
func splitBatches(indices []int, batchSize int) [][]int {
	var result [][]int
	for start := 0; start < len(indices); start += batchSize {
		var end = min(start+batchSize, len(indices))
		if end-start < 2 {
			break
		}
		result = append(result, indices[start:end])
	}
	return result
}

func batchSeed(seed uint64, epoch, index int) uint64 {
	return seed*0x9E3779B97F4A7C15 + uint64(epoch)<<32 + uint64(index)
}

func buildBatch(samples *dataset.SampleStore, job batchJob) (*batch, error) {
	var rnd = rand.New(rand.NewSource(job.seed))
	var b = &batch{
		index:  job.index,
		input:  ml.NewMatrix(len(job.indices), board.FeatureSize),
		labels: make([]float64, len(job.indices)),
	}
	for row, index := range job.indices {
		var sample, err = samples.GetWith(index, rnd)
		if err != nil {
			return nil, err
		}
		for col, v := range sample.Features {
			if v != 0 {
				b.input.Set(row, col, v)
			}
		}
		b.labels[row] = sample.Label
	}
	return b, nil
}

// prefetch assembles batches on worker goroutines and hands them to
// consume one at a time in batch order. Symmetry draws depend only on
// the seed, the epoch and the batch index, so the result does not
// depend on the number of workers.
func prefetch(
	ctx context.Context,
	samples *dataset.SampleStore,
	batches [][]int,
	seed uint64,
	epoch int,
	workers int,
	depth int,
	consume func(*batch) error,
) error {
	inner, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(inner)

	var jobs = make(chan batchJob)
	var futures = make(chan chan *batch, depth)

	g.Go(func() error {
		defer close(jobs)
		defer close(futures)
		for i, indices := range batches {
			var job = batchJob{
				index:   i,
				seed:    batchSeed(seed, epoch, i),
				indices: indices,
				out:     make(chan *batch, 1),
			}
			select {
			case jobs <- job:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case futures <- job.out:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for job := range jobs {
				var b, err = buildBatch(samples, job)
				if err != nil {
					return err
				}
				job.out <- b
			}
			return nil
		})
	}

	var consumeErr error
loop:
	for future := range futures {
		select {
		case b := <-future:
			if err := consume(b); err != nil {
				consumeErr = err
				cancel()
				break loop
			}
		case <-gctx.Done():
			break loop
		}
	}
	cancel()
	var err = g.Wait()
	if consumeErr != nil {
		return consumeErr
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}
