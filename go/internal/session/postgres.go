package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/resendio/resend/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// PostgresStore persists markers in Postgres. Each Persist upserts the
// marker row and appends to send_log in one transaction, so the audit trail
// can never disagree with the live marker.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the backing tables if they do not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS send_markers (
    identifier TEXT PRIMARY KEY,
    sent_at    TIMESTAMPTZ NOT NULL,
    meta       JSONB
);
CREATE TABLE IF NOT EXISTS send_log (
    id         BIGSERIAL PRIMARY KEY,
    identifier TEXT NOT NULL,
    sent_at    TIMESTAMPTZ NOT NULL,
    meta       JSONB
);
CREATE INDEX IF NOT EXISTS send_log_identifier_idx ON send_log (identifier, sent_at);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to init session schema: %w", err)
	}
	return nil
}

// queries binds the store's statements to a transaction.
type queries struct {
	tx *sql.Tx
}

func newQueries(tx *sql.Tx) *queries {
	return &queries{tx: tx}
}

func (q *queries) upsertMarker(ctx context.Context, identifier string, meta pqtype.NullRawMessage) (time.Time, error) {
	var sentAt time.Time
	err := q.tx.QueryRowContext(ctx, `
        INSERT INTO send_markers (identifier, sent_at, meta)
        VALUES ($1, now(), $2)
        ON CONFLICT (identifier) DO UPDATE SET sent_at = now(), meta = $2
        RETURNING sent_at
    `, identifier, meta).Scan(&sentAt)
	return sentAt, err
}

func (q *queries) insertSendLog(ctx context.Context, identifier string, sentAt time.Time, meta pqtype.NullRawMessage) error {
	_, err := q.tx.ExecContext(ctx, `
        INSERT INTO send_log (identifier, sent_at, meta)
        VALUES ($1, $2, $3)
    `, identifier, sentAt, meta)
	return err
}

// Persist upserts the marker for identifier at the database's clock and
// appends a send_log row, returning the server timestamp.
func (s *PostgresStore) Persist(ctx context.Context, identifier string, meta Meta) (time.Time, error) {
	rawMeta, err := metaToRaw(meta)
	if err != nil {
		return time.Time{}, err
	}

	var sentAt time.Time
	err = sqlutil.Run(ctx, s.db, newQueries, func(q *queries) error {
		ts, err := q.upsertMarker(ctx, identifier, rawMeta)
		if err != nil {
			return fmt.Errorf("failed to upsert marker: %w", err)
		}
		if err := q.insertSendLog(ctx, identifier, ts, rawMeta); err != nil {
			return fmt.Errorf("failed to append send log: %w", err)
		}
		sentAt = ts
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return sentAt, nil
}

// Lookup returns the marker for identifier, or nil if none exists.
func (s *PostgresStore) Lookup(ctx context.Context, identifier string) (*Marker, error) {
	var sentAt time.Time
	err := s.db.QueryRowContext(ctx, `
        SELECT sent_at FROM send_markers WHERE identifier = $1
    `, identifier).Scan(&sentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up marker: %w", err)
	}
	return &Marker{Identifier: identifier, SentAt: sentAt}, nil
}

// Clear deletes the marker for identifier. The send_log rows stay.
func (s *PostgresStore) Clear(ctx context.Context, identifier string) error {
	if _, err := s.db.ExecContext(ctx, `
        DELETE FROM send_markers WHERE identifier = $1
    `, identifier); err != nil {
		return fmt.Errorf("failed to clear marker: %w", err)
	}
	return nil
}

func metaToRaw(meta Meta) (pqtype.NullRawMessage, error) {
	if meta == (Meta{}) {
		return pqtype.NullRawMessage{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal marker meta: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}
