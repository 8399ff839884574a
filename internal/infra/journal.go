package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stellar-commitment/commitdash/internal/journal"
)

// NewJournal selects the journal backend: Postgres when db is set (the
// table is created if absent), memory otherwise.
func NewJournal(ctx context.Context, db *pgxpool.Pool) (journal.Journal, error) {
	if db == nil {
		return journal.NewInMemory(0), nil
	}
	pg := journal.NewPostgresJournal(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("prepare journal schema: %w", err)
	}
	return pg, nil
}
