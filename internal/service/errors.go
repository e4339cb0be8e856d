package service

import "errors"

var (
	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidAmount is returned when an order's computed total would be negative
	ErrInvalidAmount = errors.New("invalid order amount")

	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrProductNotFound is returned when a product cannot be found
	ErrProductNotFound = errors.New("product not found")

	// ErrBrandNotFound is returned when a brand cannot be found
	ErrBrandNotFound = errors.New("brand not found")

	// ErrCouponNotFound is returned when a coupon or its user holding cannot be found
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrOrderNotFound is returned when an order cannot be found
	ErrOrderNotFound = errors.New("order not found")

	// ErrInsufficientStock is returned when a product has less stock than requested
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientPoints is returned when a user's point balance cannot cover the debit
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrCouponAlreadyUsed is returned when the user coupon was already redeemed
	ErrCouponAlreadyUsed = errors.New("coupon already used")

	// ErrAlreadyClaimed is returned when a user attempts to claim a coupon they already hold
	ErrAlreadyClaimed = errors.New("coupon already claimed by user")

	// ErrCouponExhausted is returned when a coupon has no claimable quantity left
	ErrCouponExhausted = errors.New("coupon exhausted")

	// ErrCouponRaceLost is returned when a concurrent redemption won the version race
	ErrCouponRaceLost = errors.New("coupon race lost")

	// ErrRetryableConflict is returned when a transient concurrency failure
	// persists after the saga's retry budget is exhausted
	ErrRetryableConflict = errors.New("retryable conflict")
)
