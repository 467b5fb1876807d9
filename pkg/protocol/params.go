package protocol

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidParameter = errors.New("protocol: invalid search parameter")

// SearchParams are the engine settings packed into the 16-bit
// parameter word of a request.
type SearchParams struct {
	// EndDepth is the number of empty squares at which the endgame is solved.
	EndDepth int
	// MidDepth is the midgame search depth.
	MidDepth int
	// SolveEndExact solves the endgame for the exact score instead of win/loss/draw.
	SolveEndExact bool
	// SolveEndAdaptive is only representable in LayoutV1.
	SolveEndAdaptive bool
	UseBook          bool
	// AdjustTime lets the engine fit the settings into the remaining time.
	AdjustTime bool
}

func (p SearchParams) String() string {
	return fmt.Sprintf("SearchParams(end=%d, mid=%d, exact=%v, adaptive=%v, book=%v, adjust_time=%v)",
		p.EndDepth, p.MidDepth, p.SolveEndExact, p.SolveEndAdaptive, p.UseBook, p.AdjustTime)
}

type Version uint8

const (
	V0 Version = iota
	V1
	V2
)

// Latest is the canonical layout.
const Latest = V2

func (v Version) String() string {
	return fmt.Sprintf("v%d", uint8(v))
}

func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(s) {
	case "v0", "0":
		return V0, nil
	case "v1", "1":
		return V1, nil
	case "", "v2", "2":
		return V2, nil
	}
	return Latest, errors.Errorf("unknown protocol version %q", s)
}

// Layout packs SearchParams into a parameter word. Layouts of different
// versions are not wire compatible; client and server must agree on one.
type Layout interface {
	Version() Version
	Encode(p SearchParams) (uint16, error)
	Decode(word uint16) SearchParams
}

const noBit = -1

type bitLayout struct {
	version     Version
	endShift    uint
	endBits     uint
	maxEnd      int
	midShift    uint
	midBits     uint
	maxMid      int
	adaptiveBit int
	exactBit    int
	bookBit     int
	adjustBit   int
}

var (
	// LayoutV0: bits 0-4 end depth (0-20), bits 5-7 mid depth (0-6),
	// bit 8 exact, bit 9 book, bit 10 adjust time.
	// No V0 client survives; these offsets are assumed from the depth
	// limits of the first server and are not confirmed by a peer.
	LayoutV0 Layout = &bitLayout{
		version:  V0,
		endShift: 0, endBits: 5, maxEnd: 20,
		midShift: 5, midBits: 3, maxMid: 6,
		adaptiveBit: noBit, exactBit: 8, bookBit: 9, adjustBit: 10,
	}
	// LayoutV1: bits 0-4 end depth (0-22), bits 5-9 mid depth (0-10),
	// bit 10 adaptive, bit 11 exact, bit 12 book, bit 13 adjust time.
	LayoutV1 Layout = &bitLayout{
		version:  V1,
		endShift: 0, endBits: 5, maxEnd: 22,
		midShift: 5, midBits: 5, maxMid: 10,
		adaptiveBit: 10, exactBit: 11, bookBit: 12, adjustBit: 13,
	}
	// LayoutV2: bits 0-5 end depth (0-63), bits 6-11 mid depth (0-63),
	// bit 12 exact, bit 13 book, bit 14 adjust time.
	LayoutV2 Layout = &bitLayout{
		version:  V2,
		endShift: 0, endBits: 6, maxEnd: 63,
		midShift: 6, midBits: 6, maxMid: 63,
		adaptiveBit: noBit, exactBit: 12, bookBit: 13, adjustBit: 14,
	}
)

func LayoutFor(v Version) (Layout, error) {
	switch v {
	case V0:
		return LayoutV0, nil
	case V1:
		return LayoutV1, nil
	case V2:
		return LayoutV2, nil
	}
	return nil, errors.Errorf("unknown protocol version %d", v)
}

func (l *bitLayout) Version() Version { return l.version }

func (l *bitLayout) Encode(p SearchParams) (uint16, error) {
	if p.EndDepth < 0 || p.EndDepth > l.maxEnd {
		return 0, errors.Wrapf(ErrInvalidParameter, "end depth %d out of range 0-%d", p.EndDepth, l.maxEnd)
	}
	if p.MidDepth < 0 || p.MidDepth > l.maxMid {
		return 0, errors.Wrapf(ErrInvalidParameter, "mid depth %d out of range 0-%d", p.MidDepth, l.maxMid)
	}
	if p.SolveEndAdaptive && l.adaptiveBit == noBit {
		return 0, errors.Wrapf(ErrInvalidParameter, "adaptive endgame is not supported by %v", l.version)
	}
	var word = uint16(p.EndDepth)<<l.endShift | uint16(p.MidDepth)<<l.midShift
	word |= flag(p.SolveEndAdaptive, l.adaptiveBit)
	word |= flag(p.SolveEndExact, l.exactBit)
	word |= flag(p.UseBook, l.bookBit)
	word |= flag(p.AdjustTime, l.adjustBit)
	return word, nil
}

func (l *bitLayout) Decode(word uint16) SearchParams {
	return SearchParams{
		EndDepth:         int(word >> l.endShift & (1<<l.endBits - 1)),
		MidDepth:         int(word >> l.midShift & (1<<l.midBits - 1)),
		SolveEndAdaptive: bit(word, l.adaptiveBit),
		SolveEndExact:    bit(word, l.exactBit),
		UseBook:          bit(word, l.bookBit),
		AdjustTime:       bit(word, l.adjustBit),
	}
}

func flag(v bool, pos int) uint16 {
	if !v || pos == noBit {
		return 0
	}
	return 1 << uint(pos)
}

func bit(word uint16, pos int) bool {
	return pos != noBit && word>>uint(pos)&1 != 0
}
