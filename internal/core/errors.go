package core

import (
	"errors"
	"fmt"
)

var (
	// ErrPeerClosed means the peer sent the zero-length close frame.
	ErrPeerClosed = errors.New("peer closed the connection")
	// ErrRelayClosed means the relay is shutting down.
	ErrRelayClosed = errors.New("relay is shutting down")
	// ErrSessionClosed is returned by writes once the session is closing.
	ErrSessionClosed = errors.New("session closed")
)

// DeliveryError describes a write to one recipient that failed during routing.
// It is handled by closing that recipient and is never reported to the sender.
type DeliveryError struct {
	SessionID string
	Nickname  string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %q (session %s): %v", e.Nickname, e.SessionID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a session's reader.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("session panic: %v", e.Value)
}
