package dataset

import (
	"encoding/binary"
	"math"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/pkg/errors"
)

// MaxScore is the largest disk-count score magnitude.
const MaxScore = 64

// Record is one persisted training row.
// Score is in disks for the side to move. When Swap is set the masks are
// stored black, white with white to move, and Position exchanges them.
type Record struct {
	Own      uint64
	Opponent uint64
	Score    float32
	Moves    int8
	Move     int8
	Swap     bool
}

func (r *Record) Position() board.Position {
	var pos = board.Position{Own: r.Own, Opponent: r.Opponent}
	if r.Swap {
		return pos.Swap()
	}
	return pos
}

// Label is the score scaled to [-1, 1].
func (r *Record) Label() float64 {
	return math.Max(-1, math.Min(1, float64(r.Score)/MaxScore))
}

const recordSize = 8 + 8 + 4 + 1 + 1 + 1

func (r *Record) MarshalBinary() ([]byte, error) {
	var buf = make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[0:], r.Own)
	binary.LittleEndian.PutUint64(buf[8:], r.Opponent)
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(r.Score))
	buf[20] = byte(r.Moves)
	buf[21] = byte(r.Move)
	if r.Swap {
		buf[22] = 1
	}
	return buf, nil
}

func (r *Record) UnmarshalBinary(buf []byte) error {
	if len(buf) != recordSize {
		return errors.Errorf("record has %d bytes, want %d", len(buf), recordSize)
	}
	r.Own = binary.LittleEndian.Uint64(buf[0:])
	r.Opponent = binary.LittleEndian.Uint64(buf[8:])
	r.Score = math.Float32frombits(binary.LittleEndian.Uint32(buf[16:]))
	r.Moves = int8(buf[20])
	r.Move = int8(buf[21])
	r.Swap = buf[22] != 0
	return nil
}
