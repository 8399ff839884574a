package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
    id          UUID PRIMARY KEY,
    request_id  TEXT NOT NULL DEFAULT '',
    command     TEXT NOT NULL,
    ok          BOOLEAN NOT NULL,
    stdout      TEXT NOT NULL,
    stderr      TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS invocations_started_at_idx ON invocations (started_at DESC);`

// PostgresJournal stores invocations in PostgreSQL.
type PostgresJournal struct {
	db *pgxpool.Pool
}

// NewPostgresJournal constructs a Postgres-backed journal.
func NewPostgresJournal(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// EnsureSchema creates the invocations table when it does not exist.
func (j *PostgresJournal) EnsureSchema(ctx context.Context) error {
	_, err := j.db.Exec(ctx, schema)
	return err
}

// Append inserts one entry.
func (j *PostgresJournal) Append(ctx context.Context, entry Entry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(ctx, `INSERT INTO invocations (id, request_id, command, ok, stdout, stderr, started_at, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, entry.RequestID, entry.Command, entry.OK, entry.Stdout, entry.Stderr,
		entry.StartedAt.UTC(), entry.Duration.Milliseconds())
	return err
}

// Recent returns the newest entries first.
func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	rows, err := j.db.Query(ctx, `SELECT id, request_id, command, ok, stdout, stderr, started_at, duration_ms
        FROM invocations ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e          Entry
			id         uuid.UUID
			startedAt  time.Time
			durationMS int64
		)
		if err := row.Scan(&id, &e.RequestID, &e.Command, &e.OK, &e.Stdout, &e.Stderr, &startedAt, &durationMS); err != nil {
			return Entry{}, err
		}
		e.ID = id.String()
		e.StartedAt = startedAt.UTC()
		e.Duration = time.Duration(durationMS) * time.Millisecond
		return e, nil
	})
}
