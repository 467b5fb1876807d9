package protocol

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Engine answers one decoded request. The search behind it is not part
// of this package.
type Engine interface {
	Search(ctx context.Context, own, opponent uint64, remaining time.Duration, params SearchParams) (Response, error)
}

type EngineFunc func(ctx context.Context, own, opponent uint64, remaining time.Duration, params SearchParams) (Response, error)

func (f EngineFunc) Search(ctx context.Context, own, opponent uint64, remaining time.Duration, params SearchParams) (Response, error) {
	return f(ctx, own, opponent, remaining, params)
}

// Server handles one request per connection with its Layout.
type Server struct {
	Layout Layout
	Engine Engine
	// IOTimeout bounds reading the request and writing the response.
	IOTimeout time.Duration
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var ln, err = net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Str("layout", s.Layout.Version().String()).Msg("listening")
	return s.Serve(ctx, ln)
}

// Serve accepts connections until ctx is done, then waits for the
// connections in flight.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	var done = make(chan struct{})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-done:
		}
		ln.Close()
		return nil
	})

	var wg sync.WaitGroup
	var err = func() error {
		defer close(done)
		for {
			var conn, err = ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "accept")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handle(ctx, conn)
			}()
		}
	}()
	wg.Wait()
	g.Wait()
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if s.IOTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.IOTimeout))
	}
	var req, err = ReadRequest(conn)
	if err != nil {
		log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("read request")
		return
	}
	var params = s.Layout.Decode(req.Params)
	var remaining = time.Duration(req.Time) * 100 * time.Millisecond
	resp, err := s.Engine.Search(ctx, req.Own, req.Opponent, remaining, params)
	if err != nil {
		log.Error().Err(err).Stringer("params", params).Msg("search")
		return
	}
	buf, _ := resp.MarshalBinary()
	if _, err := conn.Write(buf); err != nil {
		log.Warn().Err(err).Msg("write response")
		return
	}
	log.Debug().
		Uint64("own", req.Own).
		Uint64("opponent", req.Opponent).
		Stringer("params", params).
		Uint8("move", resp.Move).
		Int16("eval", resp.Eval).
		Msg("answered")
}
