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

// CouponRepository provides data access for coupons and user-held coupons
// using pgx.
type CouponRepository struct {
	pool database.TxQuerier
}

// NewCouponRepository creates a new CouponRepository with the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// NewCouponRepositoryWithPool creates a CouponRepository with a custom querier.
// This is primarily used for testing.
func NewCouponRepositoryWithPool(pool database.TxQuerier) *CouponRepository {
	return &CouponRepository{pool: pool}
}

const couponColumns = `id, code, type, discount_value, total_quantity, remaining_quantity, created_at`

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.DiscountValue, &c.TotalQuantity, &c.RemainingQuantity, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCouponNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetByCode retrieves a coupon definition by its code.
// Returns service.ErrCouponNotFound if the coupon doesn't exist.
func (r *CouponRepository) GetByCode(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	c, err := scanCoupon(q.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, service.ErrCouponNotFound) {
			return nil, service.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon by code %s: %w", code, err)
	}
	return c, nil
}

// GetByCodeForUpdate retrieves a coupon with an exclusive row lock. The claim
// flow holds this lock while checking and decrementing remaining quantity.
func (r *CouponRepository) GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`

	c, err := scanCoupon(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, service.ErrCouponNotFound) {
			return nil, service.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon for update %s: %w", code, err)
	}
	return c, nil
}

// DecrementRemaining takes one claimable unit off the coupon. The caller must
// hold the row lock; the CHECK constraint rejects negative results.
func (r *CouponRepository) DecrementRemaining(ctx context.Context, tx database.TxQuerier, couponID int64) error {
	query := `UPDATE coupons SET remaining_quantity = remaining_quantity - 1 WHERE id = $1`

	if _, err := tx.Exec(ctx, query, couponID); err != nil {
		return fmt.Errorf("decrement remaining for coupon %d: %w", couponID, err)
	}
	return nil
}

// GetUserCoupon retrieves the user's holding of a coupon, including the
// version used for the optimistic redemption check.
// Returns service.ErrCouponNotFound if the user doesn't hold the coupon.
func (r *CouponRepository) GetUserCoupon(ctx context.Context, q database.TxQuerier, userID, couponID int64) (*model.UserCoupon, error) {
	query := `
		SELECT id, user_id, coupon_id, is_used, version, created_at
		FROM user_coupons
		WHERE user_id = $1 AND coupon_id = $2`

	var uc model.UserCoupon
	err := q.QueryRow(ctx, query, userID, couponID).Scan(
		&uc.ID,
		&uc.UserID,
		&uc.CouponID,
		&uc.IsUsed,
		&uc.Version,
		&uc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get user coupon user=%d coupon=%d: %w", userID, couponID, err)
	}
	return &uc, nil
}

// MarkUsed flips is_used false→true with an optimistic version check. It
// reports whether the row was updated; false means another transaction won
// the race (or the coupon was already used) and the caller must not retry.
func (r *CouponRepository) MarkUsed(ctx context.Context, tx database.TxQuerier, userCouponID, version int64) (bool, error) {
	query := `
		UPDATE user_coupons
		SET is_used = TRUE, version = version + 1
		WHERE id = $1 AND version = $2 AND is_used = FALSE`

	tag, err := tx.Exec(ctx, query, userCouponID, version)
	if err != nil {
		return false, fmt.Errorf("mark user coupon %d used: %w", userCouponID, err)
	}
	return tag.RowsAffected() > 0, nil
}
