package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// OutboxRepository provides data access for the transactional outbox using
// pgx. Inserts happen in the caller's transaction; the relay drains PENDING
// rows outside any domain transaction.
type OutboxRepository struct {
	pool database.TxQuerier
}

// NewOutboxRepository creates a new OutboxRepository with the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// NewOutboxRepositoryWithPool creates an OutboxRepository with a custom
// querier. This is primarily used for testing.
func NewOutboxRepositoryWithPool(pool database.TxQuerier) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

const outboxColumns = `id, event_id, event_type, aggregate_id, aggregate_type, version, topic, partition_key, payload, status, created_at, published_at`

// NextVersion returns the next per-aggregate version. Must run in the same
// transaction as the Insert that uses it; the domain row locks held by that
// transaction serialize writers of the same aggregate.
func (r *OutboxRepository) NextVersion(ctx context.Context, tx database.TxQuerier, aggregateID, aggregateType string) (int64, error) {
	query := `SELECT COALESCE(MAX(version), 0) + 1 FROM outbox_events WHERE aggregate_id = $1 AND aggregate_type = $2`

	var version int64
	if err := tx.QueryRow(ctx, query, aggregateID, aggregateType).Scan(&version); err != nil {
		return 0, fmt.Errorf("next outbox version for %s/%s: %w", aggregateType, aggregateID, err)
	}
	return version, nil
}

// Insert writes an outbox row in the caller's transaction. A
// unique-constraint conflict means the event was already produced; it
// reports false and is not an error.
func (r *OutboxRepository) Insert(ctx context.Context, tx database.TxQuerier, e *model.OutboxEvent) (bool, error) {
	query := `
		INSERT INTO outbox_events (event_id, event_type, aggregate_id, aggregate_type, version, topic, partition_key, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING')
		ON CONFLICT DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		e.EventID, e.EventType, e.AggregateID, e.AggregateType, e.Version,
		e.Topic, e.PartitionKey, e.Payload)
	if err != nil {
		return false, fmt.Errorf("insert outbox event %s: %w", e.EventID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FetchPending returns up to limit PENDING rows in insertion order. Used by
// the single-replica relay, which polls without claiming.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1`

	return r.fetch(ctx, r.pool, query, limit)
}

// ClaimPending returns up to limit PENDING rows locked with SKIP LOCKED so
// concurrent relay replicas never pick the same rows. Must run inside a
// transaction that stays open until the rows are marked.
func (r *OutboxRepository) ClaimPending(ctx context.Context, tx database.TxQuerier, limit int) ([]*model.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	return r.fetch(ctx, tx, query, limit)
}

func (r *OutboxRepository) fetch(ctx context.Context, q database.TxQuerier, query string, limit int) ([]*model.OutboxEvent, error) {
	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []*model.OutboxEvent
	for rows.Next() {
		var e model.OutboxEvent
		err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.EventType,
			&e.AggregateID,
			&e.AggregateType,
			&e.Version,
			&e.Topic,
			&e.PartitionKey,
			&e.Payload,
			&e.Status,
			&e.CreatedAt,
			&e.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return events, nil
}

// MarkPublished transitions rows to PUBLISHED and stamps published_at.
func (r *OutboxRepository) MarkPublished(ctx context.Context, q database.TxQuerier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE outbox_events SET status = 'PUBLISHED', published_at = NOW() WHERE id = ANY($1)`

	if _, err := q.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("mark outbox events published: %w", err)
	}
	return nil
}

// MarkFailed transitions rows to FAILED. Failed rows are left for operator
// inspection and are not retried automatically.
func (r *OutboxRepository) MarkFailed(ctx context.Context, q database.TxQuerier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE outbox_events SET status = 'FAILED' WHERE id = ANY($1)`

	if _, err := q.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("mark outbox events failed: %w", err)
	}
	return nil
}
