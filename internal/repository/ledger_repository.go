package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// LedgerRepository is the consumer-side idempotency ledger. A recorded
// event_id means the event's side effect was applied, so redeliveries of the
// same event are skipped.
type LedgerRepository struct {
	pool database.TxQuerier
}

// NewLedgerRepository creates a new LedgerRepository with the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// NewLedgerRepositoryWithPool creates a LedgerRepository with a custom
// querier. This is primarily used for testing.
func NewLedgerRepositoryWithPool(pool database.TxQuerier) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// InsertIfAbsent records the event id. It reports false when the id was
// already present, meaning the event must be skipped as a duplicate.
func (r *LedgerRepository) InsertIfAbsent(ctx context.Context, eventID uuid.UUID) (bool, error) {
	query := `INSERT INTO event_handled (event_id) VALUES ($1) ON CONFLICT DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, eventID)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry %s: %w", eventID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove deletes ledger entries. Called when a batch's side effect failed
// after the guards were inserted, so redelivery gets a fresh attempt.
func (r *LedgerRepository) Remove(ctx context.Context, eventIDs []uuid.UUID) error {
	if len(eventIDs) == 0 {
		return nil
	}
	query := `DELETE FROM event_handled WHERE event_id = ANY($1)`

	if _, err := r.pool.Exec(ctx, query, eventIDs); err != nil {
		return fmt.Errorf("remove ledger entries: %w", err)
	}
	return nil
}
