package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ledgerDB is the subset of pgxpool.Pool the ledger uses.
type ledgerDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger records which provider events have already been fully
// processed. A row is written only after the domain mutation commits, so
// a crash between mutation and mark means one retried (idempotent)
// mutation rather than a lost one.
type Ledger struct {
	db ledgerDB
}

// NewLedger creates the processed-event ledger.
func NewLedger(db ledgerDB) *Ledger {
	if db == nil {
		panic("payments: ledger db required")
	}
	return &Ledger{db: db}
}

// AlreadyProcessed reports whether this provider event id was handled.
func (l *Ledger) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists int
	err := l.db.QueryRow(ctx,
		`SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`,
		provider, eventID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("payments: ledger lookup: %w", err)
	}
	return true, nil
}

// MarkProcessed records the event id. It returns false when a
// concurrent delivery won the insert race.
func (l *Ledger) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	tag, err := l.db.Exec(ctx, `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("payments: ledger mark: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
