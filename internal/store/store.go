package store

import (
	"context"
	"time"
)

// PresenceKind tells whether a presence event is a join or a leave.
type PresenceKind string

const (
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

// PresenceEvent is one audited join or leave. Message contents are never stored.
type PresenceEvent struct {
	ID         int64
	SessionID  string
	Nickname   string
	Kind       PresenceKind
	RemoteAddr string
	At         time.Time
}

// PresenceStore handles presence audit persistence.
type PresenceStore interface {
	// RecordPresence appends an event and sets its ID.
	RecordPresence(ctx context.Context, ev *PresenceEvent) error

	// ListPresence returns the most recent events, newest first.
	ListPresence(ctx context.Context, limit int) ([]*PresenceEvent, error)

	// CountSessions returns how many distinct sessions joined since the given time.
	CountSessions(ctx context.Context, since time.Time) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	PresenceStore

	// Close closes the underlying database connection.
	Close() error
}
