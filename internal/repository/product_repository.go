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

// ProductRepository provides data access for products using pgx.
type ProductRepository struct {
	pool database.TxQuerier
}

// NewProductRepository creates a new ProductRepository with the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// NewProductRepositoryWithPool creates a ProductRepository with a custom
// querier. This is primarily used for testing.
func NewProductRepositoryWithPool(pool database.TxQuerier) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, brand_id, name, price, stock, like_count, created_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByID retrieves a product by id.
// Returns service.ErrProductNotFound if the product doesn't exist.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return nil, service.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

// GetForUpdate retrieves a product with an exclusive row lock. Callers must
// acquire locks in ascending product id order to avoid deadlocks.
func (r *ProductRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id int64) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	p, err := scanProduct(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return nil, service.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product for update %d: %w", id, err)
	}
	return p, nil
}

// AdjustStock adds delta to the product's stock. The caller must hold the row
// lock; the stock CHECK constraint rejects negative results.
func (r *ProductRepository) AdjustStock(ctx context.Context, tx database.TxQuerier, id, delta int64) error {
	query := `UPDATE products SET stock = stock + $2 WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("adjust stock for product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrProductNotFound
	}
	return nil
}

// GetByIDs batch-loads products preserving no particular order.
// Missing ids are simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Product, error) {
	if len(ids) == 0 {
		return map[int64]*model.Product{}, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get products by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*model.Product, len(ids))
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products rows: %w", err)
	}
	return out, nil
}

// ListByBrand returns one page of a brand's products ordered by id, plus
// whether another page exists. brandID 0 lists across all brands.
func (r *ProductRepository) ListByBrand(ctx context.Context, brandID int64, offset, limit int) ([]model.Product, bool, error) {
	// Fetch one extra row to decide has-next without a COUNT round trip.
	query := `SELECT ` + productColumns + ` FROM products WHERE ($1 = 0 OR brand_id = $1) ORDER BY id LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, brandID, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("list products by brand %d: %w", brandID, err)
	}
	defer rows.Close()

	var items []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount, &p.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("scan product: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate products rows: %w", err)
	}

	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}
	return items, hasNext, nil
}

// ListByLikeCount returns one page ordered by like_count descending, the
// fallback ordering when every ranking source is unavailable.
func (r *ProductRepository) ListByLikeCount(ctx context.Context, offset, limit int) ([]model.Product, bool, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY like_count DESC, id LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("list products by like count: %w", err)
	}
	defer rows.Close()

	var items []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount, &p.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("scan product: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate products rows: %w", err)
	}

	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}
	return items, hasNext, nil
}

// SyncLikeCounts rebuilds the denormalized like_count column from the likes
// table. This batch is the only writer of like_count.
func (r *ProductRepository) SyncLikeCounts(ctx context.Context) (int64, error) {
	// LEFT JOIN so products whose likes were all removed reset to zero.
	query := `
		UPDATE products p
		SET like_count = sub.cnt
		FROM (
			SELECT pr.id, COUNT(li.product_id) AS cnt
			FROM products pr
			LEFT JOIN likes li ON li.product_id = pr.id
			GROUP BY pr.id
		) sub
		WHERE p.id = sub.id AND p.like_count <> sub.cnt`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("sync like counts: %w", err)
	}
	return tag.RowsAffected(), nil
}
