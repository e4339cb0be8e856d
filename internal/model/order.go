package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus values form a DAG: PENDING→COMPLETED and PENDING→CANCELED are
// the only transitions; both targets are terminal.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCanceled  OrderStatus = "CANCELED"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCanceled
}

// OrderItem is a value object owned by its order. Name and price are
// snapshots taken when the order was placed.
type OrderItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
}

// Order is the purchase aggregate.
type Order struct {
	ID             uuid.UUID   `json:"id"`
	UserID         int64       `json:"user_id"`
	Items          []OrderItem `json:"items"`
	Subtotal       int64       `json:"subtotal"`
	DiscountAmount int64       `json:"discount_amount"`
	UsedPoints     int64       `json:"used_points"`
	TotalAmount    int64       `json:"total_amount"`
	CouponCode     string      `json:"coupon_code,omitempty"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"-"`
}

// PlaceOrderItem is one requested line in a place-order call.
type PlaceOrderItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gte=1"`
}

// PlaceOrderRequest is the DTO for POST /api/orders.
type PlaceOrderRequest struct {
	UserID     string           `json:"user_id" validate:"required,notblank,max=255"`
	Items      []PlaceOrderItem `json:"items" validate:"required,min=1,dive"`
	UsedPoints int64            `json:"used_points" validate:"gte=0"`
	CouponCode string           `json:"coupon_code" validate:"omitempty,max=255"`
	CardType   string           `json:"card_type" validate:"required,cardtype"`
	CardNo     string           `json:"card_no" validate:"required,notblank,max=32"`
}
