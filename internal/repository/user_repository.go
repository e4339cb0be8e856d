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

// UserRepository provides data access for users using pgx.
type UserRepository struct {
	pool database.TxQuerier
}

// NewUserRepository creates a new UserRepository with the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// NewUserRepositoryWithPool creates a UserRepository with a custom querier.
// This is primarily used for testing.
func NewUserRepositoryWithPool(pool database.TxQuerier) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, external_id, email, point_balance, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.PointBalance, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByExternalID retrieves a user by its external identifier.
// Returns service.ErrUserNotFound if the user doesn't exist.
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return nil, service.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by external id %s: %w", externalID, err)
	}
	return u, nil
}

// GetForUpdate retrieves a user with an exclusive row lock (SELECT FOR UPDATE).
// The lock is held until the transaction completes; point balance must only
// be mutated through this path.
func (r *UserRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, externalID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1 FOR UPDATE`

	u, err := scanUser(tx.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return nil, service.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user for update %s: %w", externalID, err)
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return nil, service.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id %d: %w", id, err)
	}
	return u, nil
}

// AdjustPoints adds delta to the user's point balance. The caller must hold
// the row lock; the balance CHECK constraint rejects negative results.
func (r *UserRepository) AdjustPoints(ctx context.Context, tx database.TxQuerier, userID, delta int64) error {
	query := `UPDATE users SET point_balance = point_balance + $2 WHERE id = $1`

	tag, err := tx.Exec(ctx, query, userID, delta)
	if err != nil {
		return fmt.Errorf("adjust points for user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrUserNotFound
	}
	return nil
}
