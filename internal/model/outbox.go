package model

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the relay-side lifecycle of an outbox row. PUBLISHED is
// terminal; FAILED rows are not auto-retried.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is one durable row of the transactional outbox. It is inserted
// in the same database transaction as the domain mutation it describes.
// (AggregateID, AggregateType, Version) is unique so duplicate production
// surfaces as an insert conflict.
type OutboxEvent struct {
	ID            int64        `json:"id"`
	EventID       uuid.UUID    `json:"event_id"`
	EventType     string       `json:"event_type"`
	AggregateID   string       `json:"aggregate_id"`
	AggregateType string       `json:"aggregate_type"`
	Version       int64        `json:"version"`
	Topic         string       `json:"topic"`
	PartitionKey  string       `json:"partition_key"`
	Payload       []byte       `json:"payload"`
	Status        OutboxStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
}
