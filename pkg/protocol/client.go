package protocol

import (
	"context"
	"math"
	"net"
	"time"

	"github.com/pkg/errors"
)

var ErrTransport = errors.New("protocol: transport failure")

// TransportError reports a failed network step. It matches ErrTransport
// with errors.Is and unwraps to the underlying cause.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "protocol: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Query is one evaluation request before packing.
type Query struct {
	Own      uint64
	Opponent uint64
	// Remaining is the time left in the game, sent in tenths of a second.
	Remaining time.Duration
	Params    SearchParams
}

// Request packs q with the given layout. Invalid parameters are reported
// as ErrInvalidParameter.
func (q *Query) Request(layout Layout) (Request, error) {
	var word, err = layout.Encode(q.Params)
	if err != nil {
		return Request{}, err
	}
	var tenths = q.Remaining / (100 * time.Millisecond)
	if tenths < 0 || tenths > math.MaxUint16 {
		return Request{}, errors.Wrapf(ErrInvalidParameter, "remaining time %v out of range", q.Remaining)
	}
	return Request{
		Own:      q.Own,
		Opponent: q.Opponent,
		Time:     uint16(tenths),
		Params:   word,
	}, nil
}

// Client sends each query over a new connection: dial, write one
// request, read one response, close. It has no retries; a deadline on
// the context bounds the whole exchange.
type Client struct {
	Addr   string
	Layout Layout
	Dialer net.Dialer
}

func NewClient(addr string, layout Layout) *Client {
	return &Client{Addr: addr, Layout: layout}
}

func (c *Client) Evaluate(ctx context.Context, q Query) (Response, error) {
	var req, err = q.Request(c.Layout)
	if err != nil {
		return Response{}, err
	}
	buf, err := req.MarshalBinary()
	if err != nil {
		return Response{}, err
	}

	conn, err := c.Dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return Response{}, &TransportError{Op: "dial", Err: err}
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	return exchange(conn, buf)
}

func exchange(conn net.Conn, request []byte) (Response, error) {
	if _, err := conn.Write(request); err != nil {
		return Response{}, &TransportError{Op: "write", Err: err}
	}
	var resp, err = ReadResponse(conn)
	if err != nil {
		return Response{}, &TransportError{Op: "read", Err: err}
	}
	return resp, nil
}
