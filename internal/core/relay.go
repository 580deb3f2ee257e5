package core

import (
	"context"
	"errors"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/frame"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const recordTimeout = 5 * time.Second

// PresenceRecorder persists join and leave events.
type PresenceRecorder interface {
	RecordPresence(ctx context.Context, ev *store.PresenceEvent) error
}

// Relay owns the registry and runs one session per connection.
type Relay struct {
	registry  *Registry
	log       *zerolog.Logger
	recorder  PresenceRecorder
	rateLimit int
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	// presenceMu is taken before any session write lock, never under registry.mu.
	presenceMu sync.Mutex
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.log = logger
		}
	}
}

// WithRecorder enables presence auditing.
func WithRecorder(rec PresenceRecorder) Option {
	return func(r *Relay) {
		r.recorder = rec
	}
}

// WithRateLimit caps inbound frames per session per minute. Zero disables the cap.
func WithRateLimit(perMinute int) Option {
	return func(r *Relay) {
		r.rateLimit = perMinute
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRelay builds a relay with an empty registry.
func NewRelay(opts ...Option) *Relay {
	nop := zerolog.Nop()
	r := &Relay{
		registry: NewRegistry(),
		log:      &nop,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle serves conn until it closes. It blocks for the lifetime of the
// connection and is meant to run in its own goroutine. Cancelling ctx closes
// the connection.
func (r *Relay) Handle(ctx context.Context, conn net.Conn) error {
	s := newSession(conn, r.log, r.now())
	s.limiter = newRateLimiter(r.rateLimit, r.now)

	// Registering under mu means Shutdown either rejects the session or sees it.
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return ErrRelayClosed
	}
	r.wg.Add(1)
	r.registry.Add(s)
	r.mu.Unlock()
	defer r.wg.Done()

	s.log.Info().Msg("client connected")

	r.run(ctx, s)
	r.teardown(s)
	return nil
}

func (r *Relay) run(ctx context.Context, s *Session) {
	defer r.recoverSession(s)

	stop := context.AfterFunc(ctx, func() {
		s.Close(ErrRelayClosed)
	})
	defer stop()

	if !s.transition(StateConnecting, StateHandshaking) {
		return
	}
	s.Close(r.readLoop(s))
}

func (r *Relay) readLoop(s *Session) error {
	fr := frame.NewReader(s.conn)
	for {
		payload, err := fr.Next()
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return ErrPeerClosed
		}
		if !s.limiter.allow() {
			s.log.Warn().Msg("rate limit exceeded, dropping frame")
			continue
		}
		env, err := proto.Decode(payload)
		if err != nil {
			return err
		}
		r.dispatch(s, env)
	}
}

func (r *Relay) recoverSession(s *Session) {
	if p := recover(); p != nil {
		s.log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("session panicked")
		s.Close(&PanicError{Value: p})
	}
}

// teardown runs once per session, on its reader goroutine.
func (r *Relay) teardown(s *Session) {
	defer close(s.done)
	defer r.recoverSession(s)

	s.Close(nil)
	nickname, claimed := r.registry.Release(s)
	s.setState(StateClosed)
	r.logClose(s, nickname)

	if !claimed || !s.announced {
		return
	}
	if !r.isClosed() {
		r.announceLeave(nickname)
	}
	r.record(s, nickname, store.PresenceLeave)
}

func (r *Relay) logClose(s *Session, nickname string) {
	cause := s.closeCause()
	ev := s.log.Info()
	msg := "client disconnected"
	switch {
	case cause == nil, errors.Is(cause, ErrPeerClosed):
	case errors.Is(cause, ErrRelayClosed):
		msg = "session closed on shutdown"
	case errors.Is(cause, frame.ErrConnectionClosed):
		ev = s.log.Warn().Err(cause)
		msg = "connection closed abnormally"
	case errors.Is(cause, frame.ErrProtocol), errors.Is(cause, proto.ErrMalformedMessage):
		ev = s.log.Warn().Err(cause)
		msg = "protocol violation, connection dropped"
	default:
		ev = s.log.Warn().Err(cause)
		msg = "connection error"
	}
	ev.Str("nickname", nickname).Msg(msg)
}

func (r *Relay) record(s *Session, nickname string, kind store.PresenceKind) {
	if r.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	ev := &store.PresenceEvent{
		SessionID:  s.ID,
		Nickname:   nickname,
		Kind:       kind,
		RemoteAddr: s.RemoteAddr,
		At:         r.now(),
	}
	if err := r.recorder.RecordPresence(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("session_id", s.ID).Str("kind", string(kind)).Msg("failed to record presence")
	}
}

func (r *Relay) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Online returns the active sessions in join order.
func (r *Relay) Online() []SessionInfo {
	sessions := r.registry.Recipients(nil)
	out := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = s.info()
	}
	return out
}

// Shutdown stops accepting sessions, closes the live ones and waits for their
// teardown or for ctx to expire.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for _, s := range r.registry.All() {
		s.Close(ErrRelayClosed)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
