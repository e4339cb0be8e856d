package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// ClaimRepository provides data access for coupon claims: the creation side
// of user_coupons. Redemption of a claimed coupon lives in CouponRepository.
type ClaimRepository struct {
	pool database.TxQuerier
}

// NewClaimRepository creates a new ClaimRepository with the given pool.
func NewClaimRepository(pool *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

// NewClaimRepositoryWithPool creates a ClaimRepository with a custom querier.
// This is primarily used for testing.
func NewClaimRepositoryWithPool(pool database.TxQuerier) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

// GetUsersByCoupon retrieves the external ids of all users holding a coupon,
// oldest claim first. On success, returns an empty slice (not nil) when no
// claims exist.
func (r *ClaimRepository) GetUsersByCoupon(ctx context.Context, couponID int64) ([]string, error) {
	query := `
		SELECT u.external_id
		FROM user_coupons uc
		JOIN users u ON u.id = uc.user_id
		WHERE uc.coupon_id = $1
		ORDER BY uc.created_at`

	rows, err := r.pool.Query(ctx, query, couponID)
	if err != nil {
		return nil, fmt.Errorf("get claims for coupon %d: %w", couponID, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var externalID string
		if err := rows.Scan(&externalID); err != nil {
			return nil, fmt.Errorf("scan claim user: %w", err)
		}
		users = append(users, externalID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims rows: %w", err)
	}

	// Return empty slice, not nil
	if users == nil {
		users = []string{}
	}
	return users, nil
}

// Insert records a new user_coupons holding within a transaction.
// Returns service.ErrAlreadyClaimed if the user already holds this coupon.
func (r *ClaimRepository) Insert(ctx context.Context, tx database.TxQuerier, userID, couponID int64) error {
	query := `INSERT INTO user_coupons (user_id, coupon_id) VALUES ($1, $2)`

	_, err := tx.Exec(ctx, query, userID, couponID)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return service.ErrAlreadyClaimed
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}
