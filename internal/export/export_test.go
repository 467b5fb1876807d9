package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/ChizhovVadim/OthelloNet/internal/nn"
	"github.com/ChizhovVadim/OthelloNet/pkg/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func randomPosition(rnd *rand.Rand) board.Position {
	var own = rnd.Uint64() & rnd.Uint64()
	return board.Position{Own: own, Opponent: rnd.Uint64() &^ own}
}

// warmedEvaluator returns an evaluator whose running statistics have
// moved away from their initial values.
func warmedEvaluator(t *testing.T, head nn.HeadKind, activation nn.ActivationKind) *nn.Evaluator {
	var rnd = rand.New(rand.NewSource(11))
	var config = nn.DefaultConfig()
	config.Width = 12
	config.Blocks = 2
	config.Head = head
	config.Activation = activation
	var e = nn.NewEvaluator(config, rnd)
	e.SetTraining(true)
	for i := 0; i < 5; i++ {
		var rows = make([][]float64, 16)
		for j := range rows {
			rows[j] = board.Encode(randomPosition(rnd))
		}
		_, err := e.Forward(ml.MatrixFromRows(rows))
		require.NoError(t, err)
	}
	return e
}

func TestExportMatchesEvaluator(t *testing.T) {
	for _, tc := range []struct {
		head       nn.HeadKind
		activation nn.ActivationKind
	}{
		{nn.DualHead, nn.LeakyReLU},
		{nn.ScalarHead, nn.LeakyReLU},
		{nn.DualHead, nn.ReLU},
	} {
		var e = warmedEvaluator(t, tc.head, tc.activation)
		var a, err = Export(e, board.Encode(board.Position{Own: 0x0000000810000000, Opponent: 0x0000001008000000}))
		require.NoError(t, err)
		require.True(t, e.Training())

		network, err := model.NewNetwork(a)
		require.NoError(t, err)
		var rnd = rand.New(rand.NewSource(3))
		for i := 0; i < 20; i++ {
			var pos = randomPosition(rnd)
			var want, err = e.Evaluate(pos)
			require.NoError(t, err)
			require.InDelta(t, want, network.Evaluate(pos.Own, pos.Opponent), 1e-4)
		}
	}
}

func TestExportRejectsBadExample(t *testing.T) {
	var e = warmedEvaluator(t, nn.DualHead, nn.LeakyReLU)
	_, err := Export(e, make([]float64, 64))
	require.True(t, errors.Is(err, ErrExport))

	var path = filepath.Join(t.TempDir(), "model.otnn")
	err = ExportFile(e, make([]float64, 64), path)
	require.True(t, errors.Is(err, ErrExport))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestExportFile(t *testing.T) {
	var e = warmedEvaluator(t, nn.DualHead, nn.LeakyReLU)
	var path = filepath.Join(t.TempDir(), "model.otnn")
	require.NoError(t, ExportFile(e, make([]float64, board.FeatureSize), path))

	network, err := model.Load(path)
	require.NoError(t, err)
	var pos = board.Position{Own: 0x00000000000000FF, Opponent: 0xFF00000000000000}
	want, err := e.Evaluate(pos)
	require.NoError(t, err)
	require.InDelta(t, want, network.Evaluate(pos.Own, pos.Opponent), 1e-4)
}
