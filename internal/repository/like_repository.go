package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// LikeRepository provides data access for product likes using pgx.
type LikeRepository struct {
	pool database.TxQuerier
}

// NewLikeRepository creates a new LikeRepository with the given pool.
func NewLikeRepository(pool *pgxpool.Pool) *LikeRepository {
	return &LikeRepository{pool: pool}
}

// NewLikeRepositoryWithPool creates a LikeRepository with a custom querier.
// This is primarily used for testing.
func NewLikeRepositoryWithPool(pool database.TxQuerier) *LikeRepository {
	return &LikeRepository{pool: pool}
}

// Insert records a like inside the given transaction. It reports whether a
// new row was created; a duplicate like inserts nothing and returns false.
func (r *LikeRepository) Insert(ctx context.Context, tx database.TxQuerier, userID, productID int64) (bool, error) {
	query := `
		INSERT INTO likes (user_id, product_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query, userID, productID)
	if err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a like inside the given transaction. It reports whether a
// row was actually deleted.
func (r *LikeRepository) Delete(ctx context.Context, tx database.TxQuerier, userID, productID int64) (bool, error) {
	query := `DELETE FROM likes WHERE user_id = $1 AND product_id = $2`

	tag, err := tx.Exec(ctx, query, userID, productID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether the user currently likes the product.
func (r *LikeRepository) Exists(ctx context.Context, userID, productID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM likes WHERE user_id = $1 AND product_id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, productID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check like exists: %w", err)
	}
	return exists, nil
}

// CountByProduct returns the authoritative number of likes for a product.
func (r *LikeRepository) CountByProduct(ctx context.Context, productID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM likes WHERE product_id = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, productID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count likes for product %d: %w", productID, err)
	}
	return count, nil
}
