package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/cache"
	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/internal/stream"
)

// Score weights per event type. Order lines score by amount on a log scale
// so one expensive order cannot bury organic interest.
const (
	viewWeight  = 0.1
	likeWeight  = 0.2
	orderWeight = 0.6
)

// MessageSource is a polled batch source with manual offset commits,
// satisfied by stream.Consumer.
type MessageSource interface {
	Poll(ctx context.Context) ([]stream.Message, error)
	CommitPolled(ctx context.Context) error
}

// Ledger guards events against double application across redeliveries.
type Ledger interface {
	InsertIfAbsent(ctx context.Context, eventID uuid.UUID) (bool, error)
	Remove(ctx context.Context, eventIDs []uuid.UUID) error
}

// ProductReader loads the prices needed to score order lines.
type ProductReader interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Product, error)
}

// ScoreStore is the sorted-set surface the scorer writes to.
type ScoreStore interface {
	IncrByAll(ctx context.Context, incs []cache.Increment) error
	ExpireNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Scorer folds bus events into the per-day ranking sets. Offsets advance
// only after a polled batch is fully applied, and each applied event is
// recorded in the idempotency ledger, so replays cannot double-count.
type Scorer struct {
	source   MessageSource
	ledger   Ledger
	products ProductReader
	store    ScoreStore
	ttl      time.Duration
}

// NewScorer creates a Scorer writing keys that expire after ttl.
func NewScorer(source MessageSource, ledger Ledger, products ProductReader, store ScoreStore, ttl time.Duration) *Scorer {
	return &Scorer{
		source:   source,
		ledger:   ledger,
		products: products,
		store:    store,
		ttl:      ttl,
	}
}

// Run polls and applies batches until the context is canceled.
func (s *Scorer) Run(ctx context.Context) error {
	log.Info().Dur("key_ttl", s.ttl).Msg("ranking scorer started")
	for {
		msgs, err := s.source.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("poll: %w", err)
		}
		if len(msgs) == 0 {
			continue
		}
		if err := s.applyWithRetry(ctx, msgs); err != nil {
			return err
		}
		if err := s.source.CommitPolled(ctx); err != nil {
			// Offsets stay behind; the ledger absorbs the redelivery.
			log.Error().Err(err).Msg("offset commit failed, batch will be redelivered")
		}
	}
}

// applyWithRetry keeps retrying the same in-memory batch; a failed attempt
// removes its ledger guards first, so the next attempt re-applies cleanly.
// Only context cancellation gives up.
func (s *Scorer) applyWithRetry(ctx context.Context, msgs []stream.Message) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		if err := s.Apply(ctx, msgs); err != nil {
			log.Warn().Err(err).Int("batch_size", len(msgs)).Msg("batch apply failed, retrying")
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

type scoredEvent struct {
	env     event.Envelope
	payload any
}

type scorePair struct {
	key    string
	member string
}

// Apply folds one batch of bus messages into the ranking sets. Undecodable
// records are dropped with a warning; events already in the ledger are
// skipped. On failure the guards inserted by this call are removed so the
// whole batch can be re-applied.
func (s *Scorer) Apply(ctx context.Context, msgs []stream.Message) (err error) {
	var guards []uuid.UUID
	defer func() {
		if err == nil || len(guards) == 0 {
			return
		}
		if rmErr := s.ledger.Remove(ctx, guards); rmErr != nil {
			log.Error().
				Err(rmErr).
				Int("guards", len(guards)).
				Msg("ledger rollback failed, redelivered events will be treated as applied")
		}
	}()

	batch := make([]scoredEvent, 0, len(msgs))
	orderProductIDs := make(map[int64]struct{})
	duplicates := 0
	for _, msg := range msgs {
		env, decErr := event.DecodeEnvelope(msg.Value)
		if decErr != nil {
			log.Warn().Err(decErr).Str("topic", msg.Topic).Msg("dropping undecodable record")
			continue
		}
		payload, decErr := decodeScored(env)
		if decErr != nil {
			log.Warn().
				Err(decErr).
				Str("event_type", string(env.EventType)).
				Stringer("event_id", env.EventID).
				Msg("dropping record with undecodable payload")
			continue
		}
		if payload == nil {
			continue
		}

		fresh, insErr := s.ledger.InsertIfAbsent(ctx, env.EventID)
		if insErr != nil {
			return insErr
		}
		if !fresh {
			duplicates++
			continue
		}
		guards = append(guards, env.EventID)
		batch = append(batch, scoredEvent{env: env, payload: payload})

		if order, ok := payload.(*event.OrderCreated); ok {
			for _, item := range order.Items {
				orderProductIDs[item.ProductID] = struct{}{}
			}
		}
	}
	if len(batch) == 0 {
		if duplicates > 0 {
			log.Debug().Int("duplicates", duplicates).Msg("batch contained only duplicates")
		}
		return nil
	}

	prices, err := s.loadPrices(ctx, orderProductIDs)
	if err != nil {
		return err
	}

	deltas := make(map[scorePair]float64)
	for _, se := range batch {
		key := Key(se.env.OccurredAt)
		switch p := se.payload.(type) {
		case *event.ProductViewed:
			deltas[scorePair{key, member(p.ProductID)}] += viewWeight
		case *event.LikeAdded:
			deltas[scorePair{key, member(p.ProductID)}] += likeWeight
		case *event.LikeRemoved:
			deltas[scorePair{key, member(p.ProductID)}] -= likeWeight
		case *event.OrderCreated:
			for _, item := range p.Items {
				product, ok := prices[item.ProductID]
				if !ok {
					log.Warn().
						Int64("product_id", item.ProductID).
						Str("order_id", p.OrderID).
						Msg("order line references unknown product, not scored")
					continue
				}
				amount := float64(product.Price * item.Quantity)
				deltas[scorePair{key, member(item.ProductID)}] += math.Log1p(amount) * orderWeight
			}
		}
	}

	incs := make([]cache.Increment, 0, len(deltas))
	for pair, delta := range deltas {
		if delta == 0 {
			continue
		}
		incs = append(incs, cache.Increment{Key: pair.key, Member: pair.member, Delta: delta})
	}
	sort.Slice(incs, func(i, j int) bool {
		if incs[i].Key != incs[j].Key {
			return incs[i].Key < incs[j].Key
		}
		return incs[i].Member < incs[j].Member
	})
	if err = s.store.IncrByAll(ctx, incs); err != nil {
		return err
	}

	touched := make(map[string]struct{})
	for _, inc := range incs {
		if _, ok := touched[inc.Key]; ok {
			continue
		}
		touched[inc.Key] = struct{}{}
		if _, ttlErr := s.store.ExpireNX(ctx, inc.Key, s.ttl); ttlErr != nil {
			// Not fatal: the next write to this key retries the TTL.
			log.Warn().Err(ttlErr).Str("key", inc.Key).Msg("failed to set key ttl")
		}
	}

	log.Debug().
		Int("events", len(batch)).
		Int("duplicates", duplicates).
		Int("increments", len(incs)).
		Msg("batch applied")
	return nil
}

// decodeScored parses the payload of a scoreable event type. A nil result
// with nil error means the type does not participate in scoring.
func decodeScored(env event.Envelope) (any, error) {
	switch env.EventType {
	case event.TypeProductViewed:
		var p event.ProductViewed
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		return &p, nil
	case event.TypeLikeAdded:
		var p event.LikeAdded
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		return &p, nil
	case event.TypeLikeRemoved:
		var p event.LikeRemoved
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		return &p, nil
	case event.TypeOrderCreated:
		var p event.OrderCreated
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		return &p, nil
	default:
		return nil, nil
	}
}

func (s *Scorer) loadPrices(ctx context.Context, idSet map[int64]struct{}) (map[int64]*model.Product, error) {
	if len(idSet) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load order line prices: %w", err)
	}
	return products, nil
}

func member(productID int64) string {
	return strconv.FormatInt(productID, 10)
}
