package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event kind.
type Type string

const (
	TypeOrderCreated     Type = "OrderCreated"
	TypeOrderCanceled    Type = "OrderCanceled"
	TypePaymentCompleted Type = "PaymentCompleted"
	TypePaymentFailed    Type = "PaymentFailed"
	TypeLikeAdded        Type = "LikeAdded"
	TypeLikeRemoved      Type = "LikeRemoved"
	TypeProductViewed    Type = "ProductViewed"
)

// Streaming bus topics. The bus is partitioned by the event's partition key.
const (
	TopicOrderEvents   = "order-events"
	TopicLikeEvents    = "like-events"
	TopicProductEvents = "product-events"
)

// Aggregate type names used for outbox versioning.
const (
	AggregateOrder       = "Order"
	AggregateLike        = "Like"
	AggregateProductView = "ProductView"
)

// Event is a domain event published on the in-process bus.
type Event interface {
	EventType() Type
}

// Routable events are forwarded to the streaming bus through the outbox.
// Aggregate identity scopes the outbox version sequence; PartitionKey scopes
// ordering at the bus.
type Routable interface {
	Event
	Aggregate() (id, typ string)
	Topic() string
	PartitionKey() string
	Occurred() time.Time
}

// Envelope is the wire format of a bus message: routing metadata plus the
// type-specific payload. The outbox row stores the marshaled envelope.
type Envelope struct {
	EventID       uuid.UUID       `json:"eventId"`
	EventType     Type            `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Version       int64           `json:"version"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses a bus message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// OrderLine is one order line as carried on the wire.
type OrderLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

// OrderCreated is emitted when the purchasing saga commits. The card and
// user-resolution fields ride along for the in-process payment initiator
// only; they are never serialized to the wire payload.
type OrderCreated struct {
	OrderID         string      `json:"orderId"`
	UserID          int64       `json:"userId"`
	CouponCode      string      `json:"couponCode,omitempty"`
	Subtotal        int64       `json:"subtotal"`
	UsedPointAmount int64       `json:"usedPointAmount"`
	Items           []OrderLine `json:"items"`
	OccurredAt      time.Time   `json:"occurredAt"`

	ExternalUserID string `json:"-"`
	TotalAmount    int64  `json:"-"`
	CardType       string `json:"-"`
	CardNo         string `json:"-"`
}

func (OrderCreated) EventType() Type { return TypeOrderCreated }
func (e OrderCreated) Aggregate() (string, string) { return e.OrderID, AggregateOrder }
func (OrderCreated) Topic() string { return TopicOrderEvents }
func (e OrderCreated) PartitionKey() string { return e.OrderID }
func (e OrderCreated) Occurred() time.Time { return e.OccurredAt }

// OrderCanceled is emitted by the compensation transaction. Items list the
// lines whose stock was restored.
type OrderCanceled struct {
	OrderID      string      `json:"orderId"`
	UserID       int64       `json:"userId"`
	Reason       string      `json:"reason,omitempty"`
	RefundPoints int64       `json:"refundPoints"`
	Items        []OrderLine `json:"items"`
	OccurredAt   time.Time   `json:"occurredAt"`
}

func (OrderCanceled) EventType() Type { return TypeOrderCanceled }
func (e OrderCanceled) Aggregate() (string, string) { return e.OrderID, AggregateOrder }
func (OrderCanceled) Topic() string { return TopicOrderEvents }
func (e OrderCanceled) PartitionKey() string { return e.OrderID }
func (e OrderCanceled) Occurred() time.Time { return e.OccurredAt }

// PaymentCompleted drives PENDING→COMPLETED. In-process only.
type PaymentCompleted struct {
	OrderID        string    `json:"orderId"`
	TransactionKey string    `json:"transactionKey,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (PaymentCompleted) EventType() Type { return TypePaymentCompleted }

// PaymentFailed drives PENDING→CANCELED with compensation. In-process only.
type PaymentFailed struct {
	OrderID      string    `json:"orderId"`
	Reason       string    `json:"reason,omitempty"`
	RefundPoints int64     `json:"refundPoints"`
	OccurredAt   time.Time `json:"occurredAt"`
}

func (PaymentFailed) EventType() Type { return TypePaymentFailed }

// LikeAdded is emitted when a like row is inserted.
type LikeAdded struct {
	UserID     int64     `json:"userId"`
	ProductID  int64     `json:"productId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (LikeAdded) EventType() Type { return TypeLikeAdded }
func (e LikeAdded) Aggregate() (string, string) {
	return likeAggregateID(e.UserID, e.ProductID), AggregateLike
}
func (LikeAdded) Topic() string { return TopicLikeEvents }
func (e LikeAdded) PartitionKey() string { return strconv.FormatInt(e.ProductID, 10) }
func (e LikeAdded) Occurred() time.Time { return e.OccurredAt }

// LikeRemoved is emitted when a like row is deleted.
type LikeRemoved struct {
	UserID     int64     `json:"userId"`
	ProductID  int64     `json:"productId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (LikeRemoved) EventType() Type { return TypeLikeRemoved }
func (e LikeRemoved) Aggregate() (string, string) {
	return likeAggregateID(e.UserID, e.ProductID), AggregateLike
}
func (LikeRemoved) Topic() string { return TopicLikeEvents }
func (e LikeRemoved) PartitionKey() string { return strconv.FormatInt(e.ProductID, 10) }
func (e LikeRemoved) Occurred() time.Time { return e.OccurredAt }

// ProductViewed records a single catalog read. Each view is its own
// aggregate occurrence, so concurrent views never contend on the outbox
// version sequence.
type ProductViewed struct {
	ViewID     uuid.UUID `json:"-"`
	ProductID  int64     `json:"productId"`
	UserID     int64     `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (ProductViewed) EventType() Type { return TypeProductViewed }
func (e ProductViewed) Aggregate() (string, string) { return e.ViewID.String(), AggregateProductView }
func (ProductViewed) Topic() string { return TopicProductEvents }
func (e ProductViewed) PartitionKey() string { return strconv.FormatInt(e.ProductID, 10) }
func (e ProductViewed) Occurred() time.Time { return e.OccurredAt }

func likeAggregateID(userID, productID int64) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(productID, 10)
}
