package protocol

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestLayoutRoundTrip(t *testing.T) {
	var cases = []struct {
		layout   Layout
		maxEnd   int
		maxMid   int
		adaptive bool
	}{
		{LayoutV0, 20, 6, false},
		{LayoutV1, 22, 10, true},
		{LayoutV2, 63, 63, false},
	}
	for _, c := range cases {
		t.Run(c.layout.Version().String(), func(t *testing.T) {
			for end := 0; end <= c.maxEnd; end++ {
				for mid := 0; mid <= c.maxMid; mid++ {
					for flags := 0; flags < 16; flags++ {
						var p = SearchParams{
							EndDepth:         end,
							MidDepth:         mid,
							SolveEndExact:    flags&1 != 0,
							UseBook:          flags&2 != 0,
							AdjustTime:       flags&4 != 0,
							SolveEndAdaptive: c.adaptive && flags&8 != 0,
						}
						var word, err = c.layout.Encode(p)
						require.NoError(t, err)
						require.Equal(t, p, c.layout.Decode(word))
					}
				}
			}
		})
	}
}

func TestLayoutKnownWords(t *testing.T) {
	var word, err = LayoutV2.Encode(SearchParams{EndDepth: 18, MidDepth: 5, SolveEndExact: true, UseBook: true})
	require.NoError(t, err)
	require.Equal(t, uint16(12626), word)

	word, err = LayoutV1.Encode(SearchParams{EndDepth: 20, MidDepth: 5, SolveEndExact: true, UseBook: true})
	require.NoError(t, err)
	require.Equal(t, uint16(6324), word)

	word, err = LayoutV2.Encode(SearchParams{EndDepth: 63, MidDepth: 63, SolveEndExact: true, UseBook: true, AdjustTime: true})
	require.NoError(t, err)
	require.Equal(t, uint16(0x7FFF), word)
}

func TestLayoutRejectsOutOfRange(t *testing.T) {
	var invalid = []struct {
		layout Layout
		params SearchParams
	}{
		{LayoutV2, SearchParams{EndDepth: 64}},
		{LayoutV2, SearchParams{MidDepth: 64}},
		{LayoutV2, SearchParams{EndDepth: -1}},
		{LayoutV2, SearchParams{SolveEndAdaptive: true}},
		{LayoutV1, SearchParams{EndDepth: 23}},
		{LayoutV1, SearchParams{MidDepth: 11}},
		{LayoutV0, SearchParams{EndDepth: 21}},
		{LayoutV0, SearchParams{MidDepth: 7}},
		{LayoutV0, SearchParams{SolveEndAdaptive: true}},
	}
	for _, c := range invalid {
		_, err := c.layout.Encode(c.params)
		require.True(t, errors.Is(err, ErrInvalidParameter), "%v %v", c.layout.Version(), c.params)
	}
}

func TestParseVersion(t *testing.T) {
	for _, s := range []string{"v0", "v1", "v2"} {
		var v, err = ParseVersion(s)
		require.NoError(t, err)
		require.Equal(t, s, v.String())
		layout, err := LayoutFor(v)
		require.NoError(t, err)
		require.Equal(t, v, layout.Version())
	}
	_, err := ParseVersion("v3")
	require.Error(t, err)
}

func TestRequestBytes(t *testing.T) {
	var req = Request{Own: 0x0102030405060708, Opponent: 0x1112131415161718, Time: 0x2122, Params: 0x3132}
	var buf, err = req.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
		0x21, 0x22, 0x31, 0x32,
	}, buf)
	parsed, err := ReadRequest(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, req, parsed)
}

type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	var n = copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestReadResponse(t *testing.T) {
	var resp, err = ReadResponse(bytes.NewReader([]byte{0x05, 0x00, 0x64}))
	require.NoError(t, err)
	require.Equal(t, Response{Move: 5, Eval: 100}, resp)

	resp, err = ReadResponse(&chunkReader{chunks: [][]byte{{0x05, 0x00}, {0x64}}})
	require.NoError(t, err)
	require.Equal(t, Response{Move: 5, Eval: 100}, resp)

	resp, err = ReadResponse(bytes.NewReader([]byte{NoMove, 0xE7, 0x00}))
	require.NoError(t, err)
	require.Equal(t, Response{Move: NoMove, Eval: -6400}, resp)
	require.False(t, resp.HasMove())

	_, err = ReadResponse(bytes.NewReader([]byte{0x05, 0x00}))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// rawServer answers every connection with handler.
func rawServer(t *testing.T, handler func(net.Conn)) string {
	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			var conn, err = ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handler(conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestClientChunkedResponse(t *testing.T) {
	var requests = make(chan Request, 1)
	var addr = rawServer(t, func(conn net.Conn) {
		var req, err = ReadRequest(conn)
		if err != nil {
			return
		}
		requests <- req
		conn.Write([]byte{0x05, 0x00})
		time.Sleep(20 * time.Millisecond)
		conn.Write([]byte{0x64})
	})

	var client = NewClient(addr, LayoutV2)
	var resp, err = client.Evaluate(context.Background(), Query{
		Own:       0x0000000810000000,
		Opponent:  0x0000001008000000,
		Remaining: 1234500 * time.Millisecond,
		Params:    SearchParams{EndDepth: 18, MidDepth: 5, SolveEndExact: true, UseBook: true},
	})
	require.NoError(t, err)
	require.Equal(t, Response{Move: 5, Eval: 100}, resp)

	var req = <-requests
	require.Equal(t, Request{
		Own:      0x0000000810000000,
		Opponent: 0x0000001008000000,
		Time:     12345,
		Params:   12626,
	}, req)
}

func TestClientInvalidParameterBeforeDial(t *testing.T) {
	var client = NewClient("127.0.0.1:1", LayoutV2)
	_, err := client.Evaluate(context.Background(), Query{Params: SearchParams{EndDepth: 64}})
	require.True(t, errors.Is(err, ErrInvalidParameter))
	require.False(t, errors.Is(err, ErrTransport))

	_, err = client.Evaluate(context.Background(), Query{Remaining: -time.Second})
	require.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestClientShortResponse(t *testing.T) {
	var addr = rawServer(t, func(conn net.Conn) {
		if _, err := ReadRequest(conn); err == nil {
			conn.Write([]byte{0x05, 0x00})
		}
	})
	_, err := NewClient(addr, LayoutV2).Evaluate(context.Background(), Query{})
	require.True(t, errors.Is(err, ErrTransport))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestClientConnectionRefused(t *testing.T) {
	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var addr = ln.Addr().String()
	ln.Close()

	_, err = NewClient(addr, LayoutV2).Evaluate(context.Background(), Query{})
	require.True(t, errors.Is(err, ErrTransport))
}

func TestServerWithClient(t *testing.T) {
	var engine = EngineFunc(func(ctx context.Context, own, opponent uint64, remaining time.Duration, params SearchParams) (Response, error) {
		if params.UseBook {
			return Response{Move: 19, Eval: int16(remaining / time.Second)}, nil
		}
		return Response{Move: NoMove, Eval: PassEval}, nil
	})
	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var server = &Server{Layout: LayoutV1, Engine: engine, IOTimeout: time.Second}
	var ctx, cancel = context.WithCancel(context.Background())
	var served = make(chan error, 1)
	go func() { served <- server.Serve(ctx, ln) }()

	var client = NewClient(ln.Addr().String(), LayoutV1)
	resp, err := client.Evaluate(context.Background(), Query{
		Remaining: 42 * time.Second,
		Params:    SearchParams{EndDepth: 22, MidDepth: 10, UseBook: true, SolveEndAdaptive: true},
	})
	require.NoError(t, err)
	require.Equal(t, Response{Move: 19, Eval: 42}, resp)

	resp, err = client.Evaluate(context.Background(), Query{})
	require.NoError(t, err)
	require.Equal(t, Response{Move: NoMove, Eval: PassEval}, resp)

	cancel()
	require.NoError(t, <-served)
}

func TestServerHandlePipe(t *testing.T) {
	var server = &Server{
		Layout: LayoutV2,
		Engine: EngineFunc(func(ctx context.Context, own, opponent uint64, remaining time.Duration, params SearchParams) (Response, error) {
			return Response{Move: uint8(params.EndDepth), Eval: -int16(params.MidDepth)}, nil
		}),
	}
	var clientSide, serverSide = net.Pipe()
	go server.handle(context.Background(), serverSide)

	var word, err = LayoutV2.Encode(SearchParams{EndDepth: 12, MidDepth: 7})
	require.NoError(t, err)
	var req = Request{Params: word}
	buf, _ := req.MarshalBinary()
	resp, err := exchange(clientSide, buf)
	require.NoError(t, err)
	require.Equal(t, Response{Move: 12, Eval: -7}, resp)
	clientSide.Close()
}
