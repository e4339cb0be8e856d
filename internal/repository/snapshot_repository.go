package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// SnapshotRepository persists periodic top-K copies of the live ranking so
// queries can fall back to them when Redis is unreachable.
type SnapshotRepository struct {
	pool database.TxQuerier
}

// NewSnapshotRepository creates a new SnapshotRepository with the given pool.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// NewSnapshotRepositoryWithPool creates a SnapshotRepository with a custom
// querier. This is primarily used for testing.
func NewSnapshotRepositoryWithPool(pool database.TxQuerier) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Upsert writes the snapshot for its date, superseding any previous snapshot
// of the same date.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap *model.RankingSnapshot) error {
	query := `
		INSERT INTO ranking_snapshots (snapshot_date, items, total_size, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (snapshot_date)
		DO UPDATE SET items = EXCLUDED.items, total_size = EXCLUDED.total_size, created_at = NOW()`

	_, err := r.pool.Exec(ctx, query, snap.Date, snap.Items, snap.TotalSize)
	if err != nil {
		return fmt.Errorf("upsert ranking snapshot %s: %w", snap.Date.Format("2006-01-02"), err)
	}
	return nil
}

// GetByDate retrieves the snapshot for a date.
// Returns nil, nil if no snapshot exists for that date (caller falls through
// to the next degradation step).
func (r *SnapshotRepository) GetByDate(ctx context.Context, date time.Time) (*model.RankingSnapshot, error) {
	query := `
		SELECT snapshot_date, items, total_size, created_at
		FROM ranking_snapshots
		WHERE snapshot_date = $1`

	var snap model.RankingSnapshot
	err := r.pool.QueryRow(ctx, query, date).Scan(&snap.Date, &snap.Items, &snap.TotalSize, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - caller degrades further
		}
		return nil, fmt.Errorf("get ranking snapshot %s: %w", date.Format("2006-01-02"), err)
	}
	return &snap, nil
}
