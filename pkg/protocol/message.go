package protocol

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

const (
	RequestSize  = 8 + 8 + 2 + 2
	ResponseSize = 1 + 2
)

const (
	// NoMove is the best move reported when the side to move must pass
	// or the game is over.
	NoMove uint8 = 65
	// PassEval is the evaluation reported together with NoMove when the
	// side to move has no legal move but the game continues.
	PassEval int16 = math.MaxInt16
)

// Request is the fixed 20-byte big-endian message
// own:uint64, opponent:uint64, time:uint16, params:uint16.
type Request struct {
	Own      uint64
	Opponent uint64
	// Time is the remaining time in tenths of a second.
	Time   uint16
	Params uint16
}

func (r *Request) MarshalBinary() ([]byte, error) {
	var buf = make([]byte, RequestSize)
	binary.BigEndian.PutUint64(buf[0:], r.Own)
	binary.BigEndian.PutUint64(buf[8:], r.Opponent)
	binary.BigEndian.PutUint16(buf[16:], r.Time)
	binary.BigEndian.PutUint16(buf[18:], r.Params)
	return buf, nil
}

func (r *Request) UnmarshalBinary(buf []byte) error {
	if len(buf) != RequestSize {
		return errors.Errorf("request has %d bytes, want %d", len(buf), RequestSize)
	}
	r.Own = binary.BigEndian.Uint64(buf[0:])
	r.Opponent = binary.BigEndian.Uint64(buf[8:])
	r.Time = binary.BigEndian.Uint16(buf[16:])
	r.Params = binary.BigEndian.Uint16(buf[18:])
	return nil
}

// Response is the fixed 3-byte big-endian message move:uint8, eval:int16.
// Eval is in centi-disks.
type Response struct {
	Move uint8
	Eval int16
}

func (r *Response) HasMove() bool {
	return r.Move < 64
}

func (r *Response) MarshalBinary() ([]byte, error) {
	var buf = make([]byte, ResponseSize)
	buf[0] = r.Move
	binary.BigEndian.PutUint16(buf[1:], uint16(r.Eval))
	return buf, nil
}

func (r *Response) UnmarshalBinary(buf []byte) error {
	if len(buf) != ResponseSize {
		return errors.Errorf("response has %d bytes, want %d", len(buf), ResponseSize)
	}
	r.Move = buf[0]
	r.Eval = int16(binary.BigEndian.Uint16(buf[1:]))
	return nil
}

// ReadRequest reads exactly one request, accumulating partial reads.
func ReadRequest(r io.Reader) (Request, error) {
	var buf [RequestSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Request{}, err
	}
	var req Request
	var err = req.UnmarshalBinary(buf[:])
	return req, err
}

// ReadResponse reads exactly one response, accumulating partial reads.
// A connection closed early yields io.ErrUnexpectedEOF or io.EOF.
func ReadResponse(r io.Reader) (Response, error) {
	var buf [ResponseSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Response{}, err
	}
	var resp Response
	var err = resp.UnmarshalBinary(buf[:])
	return resp, err
}
