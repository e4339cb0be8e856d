package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// PaymentRepository provides data access for payments using pgx.
type PaymentRepository struct {
	pool database.TxQuerier
}

// NewPaymentRepository creates a new PaymentRepository with the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// NewPaymentRepositoryWithPool creates a PaymentRepository with a custom
// querier. This is primarily used for testing.
func NewPaymentRepositoryWithPool(pool database.TxQuerier) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Insert persists the payment row inside the given transaction.
func (r *PaymentRepository) Insert(ctx context.Context, tx database.TxQuerier, p *model.Payment) error {
	var txKey *string
	if p.TransactionKey != "" {
		txKey = &p.TransactionKey
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, card_type, transaction_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OrderID, p.UserID, p.Amount, p.CardType, txKey, p.Status)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.ID, err)
	}
	return nil
}

// GetByOrderID retrieves the payment attached to an order.
// Returns service.ErrOrderNotFound if no payment exists for the order.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	query := `
		SELECT id, order_id, user_id, amount, card_type, transaction_key, status, created_at, updated_at
		FROM payments
		WHERE order_id = $1`

	var (
		p     model.Payment
		txKey *string
	)
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&p.ID,
		&p.OrderID,
		&p.UserID,
		&p.Amount,
		&p.CardType,
		&txKey,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get payment for order %s: %w", orderID, err)
	}
	if txKey != nil {
		p.TransactionKey = *txKey
	}
	return &p, nil
}

// UpdateStatusByOrder performs a guarded status transition on the order's
// payment. It reports whether the row changed; false means the payment had
// already left the from state.
func (r *PaymentRepository) UpdateStatusByOrder(ctx context.Context, q database.TxQuerier, orderID uuid.UUID, from, to model.PaymentStatus) (bool, error) {
	query := `UPDATE payments SET status = $3, updated_at = NOW() WHERE order_id = $1 AND status = $2`

	tag, err := q.Exec(ctx, query, orderID, from, to)
	if err != nil {
		return false, fmt.Errorf("update payment status for order %s %s->%s: %w", orderID, from, to, err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetTransactionKeyByOrder records the gateway transaction key on the
// order's payment. Existing keys are not overwritten.
func (r *PaymentRepository) SetTransactionKeyByOrder(ctx context.Context, q database.TxQuerier, orderID uuid.UUID, key string) error {
	query := `UPDATE payments SET transaction_key = $2, updated_at = NOW() WHERE order_id = $1 AND transaction_key IS NULL`

	_, err := q.Exec(ctx, query, orderID, key)
	if err != nil {
		return fmt.Errorf("set transaction key for order %s: %w", orderID, err)
	}
	return nil
}
