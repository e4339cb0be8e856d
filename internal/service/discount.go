package service

import (
	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
)

// DiscountStrategy computes the discount a coupon grants on a subtotal.
type DiscountStrategy interface {
	Apply(subtotal int64) int64
}

// DiscountFor selects the strategy for the coupon's type. Unknown types
// grant nothing.
func DiscountFor(c *model.Coupon) DiscountStrategy {
	switch c.Type {
	case model.CouponFixed:
		return fixedDiscount{value: c.DiscountValue}
	case model.CouponPercentage:
		return percentageDiscount{percent: c.DiscountValue}
	default:
		return noDiscount{}
	}
}

// fixedDiscount subtracts a flat amount, capped at the subtotal so the
// discount never exceeds what is being bought.
type fixedDiscount struct {
	value int64
}

func (d fixedDiscount) Apply(subtotal int64) int64 {
	if d.value > subtotal {
		return subtotal
	}
	return d.value
}

// percentageDiscount takes percent% of the subtotal, rounded half up.
type percentageDiscount struct {
	percent int64
}

func (d percentageDiscount) Apply(subtotal int64) int64 {
	return (subtotal*d.percent + 50) / 100
}

type noDiscount struct{}

func (noDiscount) Apply(int64) int64 { return 0 }
