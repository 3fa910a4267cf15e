// Package audit implements an optional Postgres-backed audit trail of
// connection and token events — never message bodies. Disabled by default
// (BROKER_AUDIT_DSN empty); when enabled it gives an operator a record of
// who connected, when, and whether their token was accepted, without the
// broker taking on any durable message storage (spec Non-goals: no
// message persistence).
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sessionbroker/broker/internal/logger"
)

// EventKind enumerates the event types recorded to the audit log.
type EventKind string

const (
	EventTokenIssued     EventKind = "token_issued"
	EventTokenRejected   EventKind = "token_rejected"
	EventConnectionOpen  EventKind = "connection_open"
	EventConnectionClose EventKind = "connection_close"
)

// Log writes audit events to Postgres. A Log with a nil db is disabled;
// every method becomes a no-op so callers don't need a feature flag at
// each call site.
type Log struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS broker_audit_events (
	id         BIGSERIAL PRIMARY KEY,
	kind       TEXT NOT NULL,
	subject    TEXT,
	session    TEXT,
	conn_id    BIGINT,
	detail     TEXT,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Open connects to Postgres at dsn and ensures the audit table exists. An
// empty dsn returns a disabled Log and a nil error.
func Open(dsn string) (*Log, error) {
	if dsn == "" {
		return &Log{db: nil}, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging audit database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("creating audit table: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database connection, if any.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// IsEnabled reports whether this Log is backed by a live database.
func (l *Log) IsEnabled() bool {
	return l != nil && l.db != nil
}

// Record inserts one audit event. Failures are logged, not returned —
// audit logging must never disrupt the connection lifecycle it's
// observing.
func (l *Log) Record(ctx context.Context, kind EventKind, subject, session string, connID uint64, detail string) {
	if !l.IsEnabled() {
		return
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO broker_audit_events (kind, subject, session, conn_id, detail) VALUES ($1, $2, $3, $4, $5)`,
		string(kind), subject, session, connID, detail)
	if err != nil {
		logger.Audit().Error().Err(err).Str("kind", string(kind)).Msg("failed to record audit event")
	}
}
