package model

import "time"

// User is the account aggregate. PointBalance is mutated only under an
// exclusive row lock during debit/credit.
type User struct {
	ID           int64     `json:"id"`
	ExternalID   string    `json:"external_id"`
	Email        string    `json:"email"`
	PointBalance int64     `json:"point_balance"`
	CreatedAt    time.Time `json:"-"`
}
