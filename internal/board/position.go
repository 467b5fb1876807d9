package board

import (
	"fmt"
	"math/bits"

	"github.com/pkg/errors"
)

const SquareCount = 64

var ErrOverlap = errors.New("board: own and opponent masks overlap")

// Position is a board seen from the side to move.
// Bit i is cell (i/8, i%8), row-major.
type Position struct {
	Own      uint64
	Opponent uint64
}

func (p Position) Validate() error {
	if overlap := p.Own & p.Opponent; overlap != 0 {
		return errors.Wrapf(ErrOverlap, "cells %#x", overlap)
	}
	return nil
}

func (p Position) Empty() uint64 {
	return ^(p.Own | p.Opponent)
}

func (p Position) DiskCount() int {
	return bits.OnesCount64(p.Own | p.Opponent)
}

// Swap returns the position from the opponent's point of view.
func (p Position) Swap() Position {
	return Position{Own: p.Opponent, Opponent: p.Own}
}

func (p Position) String() string {
	var buf = make([]byte, 0, 72)
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			var mask = uint64(1) << (8*row + col)
			switch {
			case p.Own&mask != 0:
				buf = append(buf, 'X')
			case p.Opponent&mask != 0:
				buf = append(buf, 'O')
			default:
				buf = append(buf, '.')
			}
		}
		buf = append(buf, '\n')
	}
	return string(buf)
}

func SquareName(sq int) string {
	if sq < 0 || sq >= SquareCount {
		return fmt.Sprintf("?%d", sq)
	}
	return string([]byte{byte('a' + sq%8), byte('1' + sq/8)})
}
