package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// BrandRepository provides data access for brands using pgx.
type BrandRepository struct {
	pool database.TxQuerier
}

// NewBrandRepository creates a new BrandRepository with the given pool.
func NewBrandRepository(pool *pgxpool.Pool) *BrandRepository {
	return &BrandRepository{pool: pool}
}

// NewBrandRepositoryWithPool creates a BrandRepository with a custom querier.
// This is primarily used for testing.
func NewBrandRepositoryWithPool(pool database.TxQuerier) *BrandRepository {
	return &BrandRepository{pool: pool}
}

// GetByID retrieves a brand by id.
// Returns service.ErrBrandNotFound if the brand doesn't exist.
func (r *BrandRepository) GetByID(ctx context.Context, id int64) (*model.Brand, error) {
	query := `SELECT id, name, created_at FROM brands WHERE id = $1`

	var b model.Brand
	err := r.pool.QueryRow(ctx, query, id).Scan(&b.ID, &b.Name, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrBrandNotFound
		}
		return nil, fmt.Errorf("get brand %d: %w", id, err)
	}
	return &b, nil
}

// GetByIDs batch-loads brands. Missing ids are absent from the result.
func (r *BrandRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Brand, error) {
	if len(ids) == 0 {
		return map[int64]*model.Brand{}, nil
	}
	query := `SELECT id, name, created_at FROM brands WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get brands by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*model.Brand, len(ids))
	for rows.Next() {
		var b model.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		out[b.ID] = &b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate brands rows: %w", err)
	}
	return out, nil
}
