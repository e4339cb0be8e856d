package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// Producer publishes one record to the streaming bus and waits for the ack.
type Producer interface {
	Produce(ctx context.Context, topic, key string, value []byte) error
}

// RelayRepository defines the outbox data access the relay needs.
type RelayRepository interface {
	FetchPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	ClaimPending(ctx context.Context, tx database.TxQuerier, limit int) ([]*model.OutboxEvent, error)
	MarkPublished(ctx context.Context, q database.TxQuerier, ids []int64) error
	MarkFailed(ctx context.Context, q database.TxQuerier, ids []int64) error
}

// Pool is the subset of *pgxpool.Pool the relay uses: transactions for the
// claiming mode and plain execution for status marks.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	database.TxQuerier
}

// Relay drains PENDING outbox rows to the streaming bus in insertion order.
// By default it runs as a single logical worker polling without claims; with
// claiming enabled, rows are locked with SKIP LOCKED so multiple replicas
// can run side by side.
type Relay struct {
	pool      Pool
	repo      RelayRepository
	producer  Producer
	batchSize int
	interval  time.Duration
	claiming  bool
}

// NewRelay creates a relay. batchSize <= 0 defaults to 100; interval <= 0
// defaults to 1s.
func NewRelay(pool Pool, repo RelayRepository, producer Producer, batchSize int, interval time.Duration, claiming bool) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		pool:      pool,
		repo:      repo,
		producer:  producer,
		batchSize: batchSize,
		interval:  interval,
		claiming:  claiming,
	}
}

// Run polls until ctx is canceled. Cycles never overlap; an error in one
// cycle is logged and the next tick starts fresh.
func (r *Relay) Run(ctx context.Context) {
	log.Info().
		Dur("interval", r.interval).
		Int("batch_size", r.batchSize).
		Bool("claiming", r.claiming).
		Msg("outbox relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				log.Error().Err(err).Msg("outbox relay cycle failed")
			}
		}
	}
}

func (r *Relay) runOnce(ctx context.Context) error {
	if r.claiming {
		return r.relayClaimed(ctx)
	}

	events, err := r.repo.FetchPending(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	published, failed := r.publish(ctx, events)
	if err := r.repo.MarkPublished(ctx, r.pool, published); err != nil {
		return err
	}
	return r.repo.MarkFailed(ctx, r.pool, failed)
}

// relayClaimed fetches and marks inside one transaction so the SKIP LOCKED
// claim holds until the rows' final status is written.
func (r *Relay) relayClaimed(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	events, err := r.repo.ClaimPending(ctx, tx, r.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	published, failed := r.publish(ctx, events)
	if err := r.repo.MarkPublished(ctx, tx, published); err != nil {
		return err
	}
	if err := r.repo.MarkFailed(ctx, tx, failed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// publish forwards each event and splits the batch into published and failed
// ids. One event's failure never blocks the rest of the batch.
func (r *Relay) publish(ctx context.Context, events []*model.OutboxEvent) (published, failed []int64) {
	for _, e := range events {
		if err := r.producer.Produce(ctx, e.Topic, e.PartitionKey, e.Payload); err != nil {
			log.Error().
				Err(err).
				Str("event_id", e.EventID.String()).
				Str("topic", e.Topic).
				Msg("outbox publish failed")
			failed = append(failed, e.ID)
			continue
		}
		published = append(published, e.ID)
	}
	return published, failed
}
