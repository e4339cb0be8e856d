// Package outbox implements the transactional outbox: a bridge that persists
// routable events in the producing transaction, and a relay that forwards
// committed rows to the streaming bus.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// Repository defines the outbox data access the bridge needs.
type Repository interface {
	NextVersion(ctx context.Context, tx database.TxQuerier, aggregateID, aggregateType string) (int64, error)
	Insert(ctx context.Context, tx database.TxQuerier, e *model.OutboxEvent) (bool, error)
}

// Bridge is the only writer of outbox rows. It subscribes to the
// before-commit phase of every routable event type, so an outbox row exists
// exactly when the producing transaction commits.
type Bridge struct {
	repo Repository
}

// NewBridge creates a Bridge over the given repository.
func NewBridge(repo Repository) *Bridge {
	return &Bridge{repo: repo}
}

// Register subscribes the bridge to every routable event type.
func (b *Bridge) Register(bus *event.Bus) {
	for _, t := range []event.Type{
		event.TypeOrderCreated,
		event.TypeOrderCanceled,
		event.TypeLikeAdded,
		event.TypeLikeRemoved,
		event.TypeProductViewed,
	} {
		bus.SubscribeBefore(t, b.Write)
	}
}

// Write persists one event as an outbox row inside the producing
// transaction. Non-routable events pass through untouched. A duplicate
// insert (same aggregate and version) means the event was already produced
// and is treated as success.
func (b *Bridge) Write(ctx context.Context, tx database.TxQuerier, e event.Event) error {
	r, ok := e.(event.Routable)
	if !ok {
		return nil
	}

	aggregateID, aggregateType := r.Aggregate()
	version, err := b.repo.NextVersion(ctx, tx, aggregateID, aggregateType)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", r.EventType(), err)
	}
	envelope := event.Envelope{
		EventID:       uuid.New(),
		EventType:     r.EventType(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		OccurredAt:    r.Occurred(),
		Payload:       payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", r.EventType(), err)
	}

	inserted, err := b.repo.Insert(ctx, tx, &model.OutboxEvent{
		EventID:       envelope.EventID,
		EventType:     string(r.EventType()),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		Topic:         r.Topic(),
		PartitionKey:  r.PartitionKey(),
		Payload:       body,
	})
	if err != nil {
		return err
	}
	if !inserted {
		log.Debug().
			Str("event_type", string(r.EventType())).
			Str("aggregate_id", aggregateID).
			Int64("version", version).
			Msg("duplicate outbox insert skipped")
	}
	return nil
}
