package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// OrderRepository provides data access for orders and their items using pgx.
type OrderRepository struct {
	pool database.TxQuerier
}

// NewOrderRepository creates a new OrderRepository with the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NewOrderRepositoryWithPool creates an OrderRepository with a custom querier.
// This is primarily used for testing.
func NewOrderRepositoryWithPool(pool database.TxQuerier) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, user_id, subtotal, discount_amount, used_points, total_amount, coupon_code, status, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o          model.Order
		couponCode *string
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Subtotal,
		&o.DiscountAmount,
		&o.UsedPoints,
		&o.TotalAmount,
		&couponCode,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrOrderNotFound
		}
		return nil, err
	}
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	return &o, nil
}

// Insert persists the order row and its item snapshots inside the given
// transaction.
func (r *OrderRepository) Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
	var couponCode *string
	if order.CouponCode != "" {
		couponCode = &order.CouponCode
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, subtotal, discount_amount, used_points, total_amount, coupon_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID, order.UserID, order.Subtotal, order.DiscountAmount,
		order.UsedPoints, order.TotalAmount, couponCode, order.Status)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}

	for _, item := range order.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, price, quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			order.ID, item.ProductID, item.ProductName, item.Price, item.Quantity)
		if err != nil {
			return fmt.Errorf("insert order item order=%s product=%d: %w", order.ID, item.ProductID, err)
		}
	}
	return nil
}

// GetByID retrieves an order with its items.
// Returns service.ErrOrderNotFound if the order doesn't exist.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return nil, service.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	items, err := r.getItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// GetForUpdate retrieves an order with an exclusive row lock and its items.
// Status transitions must be made through this path so terminal states win
// over concurrent completion/cancellation.
func (r *OrderRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return nil, service.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order for update %s: %w", id, err)
	}

	items, err := r.getItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *OrderRepository) getItems(ctx context.Context, q database.TxQuerier, orderID uuid.UUID) ([]model.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, product_name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items %s: %w", orderID, err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items rows: %w", err)
	}
	return items, nil
}

// UpdateStatus performs a guarded transition from→to. It reports whether the
// row changed; false means the order was no longer in the from state, which
// idempotent handlers treat as already handled.
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx database.TxQuerier, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	query := `UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`

	tag, err := tx.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update order %s status %s->%s: %w", id, from, to, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindPendingOlderThan lists orders still PENDING that were created before
// the cutoff, oldest first. The recovery loop uses the cutoff to skip orders
// whose synchronous payment call may still be in flight.
func (r *OrderRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("find pending orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending orders rows: %w", err)
	}
	return orders, nil
}
