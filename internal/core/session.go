package core

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/frame"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// State is a session's position in its lifecycle.
type State int32

const (
	// StateConnecting: transport accepted, reader not started yet.
	StateConnecting State = iota
	// StateHandshaking: waiting for the first join.
	StateHandshaking
	// StateActive: nickname claimed, messages are routed.
	StateActive
	// StateClosing: a close was requested, teardown pending.
	StateClosing
	// StateClosed: released from the registry.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the server-side state of one connection.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn     net.Conn
	log      zerolog.Logger
	limiter  *rateLimiter
	state    atomic.Int32
	nickname atomic.Value

	writeMu sync.Mutex

	// announced is set once peers were told about the join. Reader goroutine only.
	announced bool

	closeOnce sync.Once
	cause     error
	done      chan struct{}
}

func newSession(conn net.Conn, logger *zerolog.Logger, connectedAt time.Time) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		ConnectedAt: connectedAt,
		conn:        conn,
		done:        make(chan struct{}),
	}
	if addr := conn.RemoteAddr(); addr != nil {
		s.RemoteAddr = addr.String()
	}
	s.log = logger.With().Str("session_id", s.ID).Str("remote_addr", s.RemoteAddr).Logger()
	s.nickname.Store("")
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// transition moves from one state to another and fails if a concurrent
// Close got there first.
func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Nickname returns the claimed nickname, or "" before join.
func (s *Session) Nickname() string {
	return s.nickname.Load().(string)
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// sendPayload writes one frame. Safe for concurrent use.
func (s *Session) sendPayload(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writePayloadLocked(payload)
}

// writePayloadLocked requires writeMu.
func (s *Session) writePayloadLocked(payload []byte) error {
	if s.State() >= StateClosing {
		return ErrSessionClosed
	}
	return frame.Write(s.conn, payload)
}

func (s *Session) writeEnvelopeLocked(env proto.Envelope) error {
	payload, err := proto.Encode(env)
	if err != nil {
		return err
	}
	return s.writePayloadLocked(payload)
}

// Close requests the session to close. Only the first cause is kept; later
// calls from the read path, the write path or shutdown are no-ops.
func (s *Session) Close(cause error) {
	s.closeOnce.Do(func() {
		s.cause = cause
		s.setState(StateClosing)
		_ = s.conn.Close()
	})
}

// closeCause is valid once Close has returned.
func (s *Session) closeCause() error {
	return s.cause
}

// SessionInfo is a read-only view of an active session.
type SessionInfo struct {
	ID          string    `json:"session_id"`
	Nickname    string    `json:"nickname"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:          s.ID,
		Nickname:    s.Nickname(),
		RemoteAddr:  s.RemoteAddr,
		ConnectedAt: s.ConnectedAt,
	}
}
