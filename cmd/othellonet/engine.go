package main

import (
	"context"
	"math/bits"
	"time"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/ChizhovVadim/OthelloNet/pkg/model"
	"github.com/ChizhovVadim/OthelloNet/pkg/protocol"
)

// staticEngine answers with the artifact's evaluation of the position
// itself. It does not search, so it never names a move.
type staticEngine struct {
	network *model.Network
}

func (e *staticEngine) Search(ctx context.Context, own, opponent uint64, remaining time.Duration, params protocol.SearchParams) (protocol.Response, error) {
	var pos = board.Position{Own: own, Opponent: opponent}
	if err := pos.Validate(); err != nil {
		return protocol.Response{}, err
	}
	if pos.Empty() == 0 {
		var diff = bits.OnesCount64(own) - bits.OnesCount64(opponent)
		return protocol.Response{Move: protocol.NoMove, Eval: int16(100 * diff)}, nil
	}
	var cd = model.Centidisks(e.network.Evaluate(own, opponent))
	cd = max(-100*model.SquareCount, min(100*model.SquareCount, cd))
	return protocol.Response{Move: protocol.NoMove, Eval: int16(cd)}, nil
}
