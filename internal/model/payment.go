package model

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus mirrors the gateway's terminal/pending states.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Payment references its order by id; created PENDING at saga start and
// driven to a terminal state by the gateway response or the recovery loop.
type Payment struct {
	ID             uuid.UUID     `json:"id"`
	OrderID        uuid.UUID     `json:"order_id"`
	UserID         int64         `json:"user_id"`
	Amount         int64         `json:"amount"`
	CardType       string        `json:"card_type"`
	TransactionKey string        `json:"transaction_key,omitempty"`
	Status         PaymentStatus `json:"status"`
	CreatedAt      time.Time     `json:"-"`
	UpdatedAt      time.Time     `json:"-"`
}
