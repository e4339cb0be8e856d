package model

import "time"

// CouponType selects the discount strategy.
type CouponType string

const (
	CouponFixed      CouponType = "FIXED"
	CouponPercentage CouponType = "PERCENTAGE"
)

// Coupon is the coupon definition. DiscountValue is an absolute amount for
// FIXED and a percentage (1..100) for PERCENTAGE. RemainingQuantity counts
// how many holdings can still be claimed; it is mutated only under an
// exclusive row lock.
type Coupon struct {
	ID                int64      `json:"id"`
	Code              string     `json:"code"`
	Type              CouponType `json:"type"`
	DiscountValue     int64      `json:"discount_value"`
	TotalQuantity     int64      `json:"total_quantity"`
	RemainingQuantity int64      `json:"remaining_quantity"`
	CreatedAt         time.Time  `json:"-"`
}

// UserCoupon is a coupon held by a user. Exactly one successful false→true
// transition of IsUsed is allowed per row; Version backs the optimistic
// concurrency check.
type UserCoupon struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CouponID  int64     `json:"coupon_id"`
	IsUsed    bool      `json:"is_used"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"-"`
}

// CouponResponse is the API shape for GET /api/coupons/:code.
type CouponResponse struct {
	Code              string     `json:"code"`
	Type              CouponType `json:"type"`
	DiscountValue     int64      `json:"discount_value"`
	TotalQuantity     int64      `json:"total_quantity"`
	RemainingQuantity int64      `json:"remaining_quantity"`
	ClaimedBy         []string   `json:"claimed_by"`
}

// ClaimCouponRequest is the DTO for POST /api/coupons/claim.
type ClaimCouponRequest struct {
	UserID     string `json:"user_id" validate:"required,notblank,max=255"`
	CouponCode string `json:"coupon_code" validate:"required,notblank,max=255"`
}
