package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Schema creates the presence audit table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS presence_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	nickname    TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('join', 'leave')),
	remote_addr TEXT NOT NULL DEFAULT '',
	at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_presence_events_at ON presence_events(at DESC);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, migrate)
}

// NewWithSetup opens the database and runs setup instead of the default schema.
// Useful for tests.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; :memory: databases also
	// only exist per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordPresence appends a presence event and sets its ID.
func (s *SQLiteStore) RecordPresence(ctx context.Context, ev *store.PresenceEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	query := `
		INSERT INTO presence_events (session_id, nickname, kind, remote_addr, at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, ev.SessionID, ev.Nickname, string(ev.Kind), ev.RemoteAddr, ev.At.UTC())
	if err != nil {
		return fmt.Errorf("insert presence event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	ev.ID = id
	return nil
}

// ListPresence returns the most recent events, newest first.
func (s *SQLiteStore) ListPresence(ctx context.Context, limit int) ([]*store.PresenceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, nickname, kind, remote_addr, at
		FROM presence_events
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query presence events: %w", err)
	}
	defer rows.Close()

	events := make([]*store.PresenceEvent, 0, limit)
	for rows.Next() {
		var ev store.PresenceEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Nickname, &kind, &ev.RemoteAddr, &ev.At); err != nil {
			return nil, fmt.Errorf("scan presence event: %w", err)
		}
		ev.Kind = store.PresenceKind(kind)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presence events: %w", err)
	}

	return events, nil
}

// CountSessions returns how many distinct sessions joined since the given time.
func (s *SQLiteStore) CountSessions(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT session_id)
		FROM presence_events
		WHERE kind = 'join' AND at >= ?
	`
	var n int
	if err := s.db.QueryRowContext(ctx, query, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
