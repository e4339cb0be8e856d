package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// ClaimRepositoryInterface defines the interface for claim data access.
type ClaimRepositoryInterface interface {
	GetUsersByCoupon(ctx context.Context, couponID int64) ([]string, error)
	Insert(ctx context.Context, tx database.TxQuerier, userID, couponID int64) error
}

// CouponService provides coupon claiming and lookup. Redemption of a claimed
// coupon happens inside the purchase saga, not here.
type CouponService struct {
	pool       Pool
	couponRepo CouponRepositoryInterface
	claimRepo  ClaimRepositoryInterface
	userRepo   UserRepositoryInterface
}

// NewCouponService creates a new CouponService with the given pool and
// repositories.
func NewCouponService(pool *pgxpool.Pool, couponRepo CouponRepositoryInterface, claimRepo ClaimRepositoryInterface, userRepo UserRepositoryInterface) *CouponService {
	return &CouponService{
		pool:       pool,
		couponRepo: couponRepo,
		claimRepo:  claimRepo,
		userRepo:   userRepo,
	}
}

// NewCouponServiceWithPool creates a CouponService with a custom pool.
// This is primarily used for testing.
func NewCouponServiceWithPool(pool Pool, couponRepo CouponRepositoryInterface, claimRepo ClaimRepositoryInterface, userRepo UserRepositoryInterface) *CouponService {
	return &CouponService{
		pool:       pool,
		couponRepo: couponRepo,
		claimRepo:  claimRepo,
		userRepo:   userRepo,
	}
}

// GetByCode retrieves a coupon with the external ids of its holders.
// Returns ErrCouponNotFound if the coupon doesn't exist.
func (s *CouponService) GetByCode(ctx context.Context, code string) (*model.CouponResponse, error) {
	coupon, err := s.couponRepo.GetByCode(ctx, s.pool, code)
	if err != nil {
		return nil, err
	}

	claimedBy, err := s.claimRepo.GetUsersByCoupon(ctx, coupon.ID)
	if err != nil {
		return nil, fmt.Errorf("get claims: %w", err)
	}

	return &model.CouponResponse{
		Code:              coupon.Code,
		Type:              coupon.Type,
		DiscountValue:     coupon.DiscountValue,
		TotalQuantity:     coupon.TotalQuantity,
		RemainingQuantity: coupon.RemainingQuantity,
		ClaimedBy:         claimedBy,
	}, nil
}

// Claim atomically grants the user a holding of the coupon.
// Uses SELECT FOR UPDATE to lock the coupon row during the transaction.
// Returns:
//   - ErrUserNotFound if the user doesn't exist
//   - ErrCouponNotFound if the coupon doesn't exist
//   - ErrCouponExhausted if no claimable quantity remains
//   - ErrAlreadyClaimed if the user already holds this coupon
func (s *CouponService) Claim(ctx context.Context, externalUserID, code string) error {
	user, err := s.userRepo.GetByExternalID(ctx, externalUserID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	// 1. Lock the coupon row (SELECT FOR UPDATE)
	coupon, err := s.couponRepo.GetByCodeForUpdate(ctx, tx, code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return ErrCouponNotFound
		}
		return fmt.Errorf("get coupon for update: %w", err)
	}

	// 2. Check claimable quantity
	if coupon.RemainingQuantity <= 0 {
		return ErrCouponExhausted
	}

	// 3. Insert the holding (UNIQUE constraint catches duplicates)
	err = s.claimRepo.Insert(ctx, tx, user.ID, coupon.ID)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("insert claim: %w", err)
	}

	// 4. Decrement claimable quantity
	if err := s.couponRepo.DecrementRemaining(ctx, tx, coupon.ID); err != nil {
		return fmt.Errorf("decrement remaining: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	log.Info().
		Str("user_id", externalUserID).
		Str("coupon_code", code).
		Msg("coupon claimed")
	return nil
}
