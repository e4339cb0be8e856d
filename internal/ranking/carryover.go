package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// CarryStore is the sorted-set surface the carry-over job needs.
type CarryStore interface {
	UnionStoreWeighted(ctx context.Context, dest string, keys []string, weights []float64) (int64, error)
	ExpireNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	SetMarkerNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	DeleteMarker(ctx context.Context, key string) error
}

// CarryOver seeds a day's ranking set with a fraction of the previous day's
// scores, so the board does not cold-start at midnight. Applying it twice
// for the same date doubles the bias, so each run claims a per-date marker
// first; reruns and concurrent instances back off.
type CarryOver struct {
	store  CarryStore
	weight float64
	ttl    time.Duration
	now    func() time.Time
}

// NewCarryOver creates a CarryOver seeding with the given previous-day
// weight. Keys and markers expire after ttl.
func NewCarryOver(store CarryStore, weight float64, ttl time.Duration) *CarryOver {
	return &CarryOver{
		store:  store,
		weight: weight,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Run performs the carry-over for the current UTC date.
func (c *CarryOver) Run(ctx context.Context) error {
	return c.runFor(ctx, c.now().UTC())
}

func (c *CarryOver) runFor(ctx context.Context, date time.Time) error {
	today := Key(date)
	yesterday := Key(date.AddDate(0, 0, -1))
	marker := CarryOverMarker(date)

	claimed, err := c.store.SetMarkerNX(ctx, marker, c.ttl)
	if err != nil {
		return fmt.Errorf("claim carry-over marker: %w", err)
	}
	if !claimed {
		log.Info().Str("date", date.Format("20060102")).Msg("carry-over already applied, skipping")
		return nil
	}

	// ZUNIONSTORE with weight 1 on today keeps any scores that already
	// accumulated past midnight and folds in the damped previous day.
	n, err := c.store.UnionStoreWeighted(ctx, today, []string{today, yesterday}, []float64{1, c.weight})
	if err != nil {
		if rmErr := c.store.DeleteMarker(ctx, marker); rmErr != nil {
			log.Error().Err(rmErr).Str("marker", marker).Msg("failed to release carry-over marker after error")
		}
		return fmt.Errorf("carry over %s into %s: %w", yesterday, today, err)
	}

	// ZUNIONSTORE drops the destination TTL, so re-arm it.
	if _, err := c.store.ExpireNX(ctx, today, c.ttl); err != nil {
		log.Warn().Err(err).Str("key", today).Msg("failed to set key ttl after carry-over")
	}

	log.Info().
		Str("date", date.Format("20060102")).
		Int64("members", n).
		Float64("weight", c.weight).
		Msg("carry-over applied")
	return nil
}
