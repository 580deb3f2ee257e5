package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Handler serves one accepted connection until it closes.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn) error
}

// Server accepts TCP connections and hands each to a Handler on its own goroutine.
type Server struct {
	handler Handler
	log     *zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a server that routes connections to handler.
func NewServer(handler Handler, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{handler: handler, log: logger}
}

// Serve accepts connections from ln until ctx is cancelled or ln is closed.
// Other accept errors are logged and retried with backoff. Serve closes ln
// before returning and waits for handlers that are still running.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer s.wg.Wait()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp relay listening")

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Descriptor exhaustion and aborted handshakes clear up on their own.
			backoff = nextBackoff(backoff)
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept error")
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		backoff = 0

		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error().Interface("panic", p).Str("remote_addr", conn.RemoteAddr().String()).Msg("connection handler panicked")
			_ = conn.Close()
		}
	}()

	if err := s.handler.Handle(ctx, conn); err != nil {
		s.log.Debug().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("connection rejected")
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	if cur == 0 {
		return minAcceptBackoff
	}
	cur *= 2
	if cur > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return cur
}
