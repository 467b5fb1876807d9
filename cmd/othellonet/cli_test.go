package main

import (
	"bytes"
	"context"
	"flag"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/ChizhovVadim/OthelloNet/internal/checkpoint"
	"github.com/ChizhovVadim/OthelloNet/internal/dataset"
	"github.com/ChizhovVadim/OthelloNet/internal/nn"
	"github.com/ChizhovVadim/OthelloNet/pkg/model"
	"github.com/ChizhovVadim/OthelloNet/pkg/protocol"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestCliDispatch(t *testing.T) {
	var out bytes.Buffer
	var cli = NewCli("othellonet", &out)
	var got int
	var mask bitboardFlag
	cli.AddCommand("count", "count things", func(fs *flag.FlagSet) commandFunc {
		var n = fs.Int("n", 1, "count")
		fs.Var(&mask, "mask", "mask")
		return func(ctx context.Context) error {
			got = *n
			return nil
		}
	})

	require.NoError(t, cli.Execute(context.Background(), []string{"count", "-n", "7", "-mask", "0x8000_0000_0000_0001"}))
	require.Equal(t, 7, got)
	require.Equal(t, bitboardFlag(0x8000000000000001), mask)

	require.Error(t, cli.Execute(context.Background(), []string{"missing"}))
	require.Contains(t, out.String(), "count things")
	require.Error(t, cli.Execute(context.Background(), nil))
	require.Error(t, cli.Execute(context.Background(), []string{"count", "-mask", "zz"}))
}

func TestListFlag(t *testing.T) {
	var l listFlag
	require.NoError(t, l.Set("encoder, tower.1,,head"))
	require.Equal(t, listFlag{"encoder", "tower.1", "head"}, l)
	require.Equal(t, "encoder,tower.1,head", l.String())
}

func testCheckpoint() *checkpoint.Checkpoint {
	var config = nn.DefaultConfig()
	config.Width = 8
	config.Blocks = 1
	var e = nn.NewEvaluator(config, rand.New(rand.NewSource(1)))
	return &checkpoint.Checkpoint{Epoch: 1, Model: config, Params: e.StateDict()}
}

func TestStaticEngine(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "model.otnn")
	var c = testCheckpoint()
	require.NoError(t, exportCheckpoint(c, path))
	network, err := model.Load(path)
	require.NoError(t, err)

	var evaluator = nn.NewEvaluator(c.Model, nil)
	require.NoError(t, evaluator.LoadStateDict(c.Params))
	var pos = board.Position{Own: 0x0000000810000000, Opponent: 0x0000001008000000}
	want, err := evaluator.Evaluate(pos)
	require.NoError(t, err)

	var engine = &staticEngine{network: network}
	resp, err := engine.Search(context.Background(), pos.Own, pos.Opponent, 0, protocol.SearchParams{})
	require.NoError(t, err)
	require.Equal(t, protocol.NoMove, resp.Move)
	require.InDelta(t, float64(model.Centidisks(want)), float64(resp.Eval), 1)

	resp, err = engine.Search(context.Background(), math.MaxUint64>>4, 0xF<<60, 0, protocol.SearchParams{})
	require.NoError(t, err)
	require.Equal(t, protocol.Response{Move: protocol.NoMove, Eval: 5600}, resp)

	_, err = engine.Search(context.Background(), 1, 1, 0, protocol.SearchParams{})
	require.ErrorIs(t, err, board.ErrOverlap)
}

func TestAverageWithoutFiles(t *testing.T) {
	var cli = NewCli("othellonet", &bytes.Buffer{})
	cli.AddCommand("average", "", averageCommand)
	var err = cli.Execute(context.Background(), []string{"average", "-out", filepath.Join(t.TempDir(), "avg.ckpt")})
	require.ErrorIs(t, err, checkpoint.ErrEmpty)
}

func TestImportWithConfig(t *testing.T) {
	var dir = t.TempDir()
	var store = filepath.Join(dir, "store")
	var configPath = filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("data:\n  dataset: "+store+"\n  format: ply\n"), 0644))
	var csvPath = filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1,34628173824,68853694464,1600\n"), 0644))

	var cli = NewCli("othellonet", &bytes.Buffer{})
	cli.AddCommand("import", "", importCommand)
	require.NoError(t, cli.Execute(context.Background(), []string{"import", "-config", configPath, "-csv", csvPath}))

	for _, inMemory := range []bool{true, false} {
		var source, closeSource, err = openSource(store, inMemory)
		require.NoError(t, err)
		require.Equal(t, 1, source.Len())
		rec, err := source.Record(0)
		require.NoError(t, err)
		require.Equal(t, dataset.Record{Own: 34628173824, Opponent: 68853694464, Score: 16, Move: -1, Swap: true}, rec)
		require.NoError(t, closeSource())
	}
}
