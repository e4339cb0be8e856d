package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScoredMember is one sorted-set entry.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSetStore exposes the sorted-set operations the ranking pipeline
// needs. Keys are owned by the callers.
type SortedSetStore struct {
	client *redis.Client
}

// NewSortedSetStore creates a SortedSetStore on the given client.
func NewSortedSetStore(client *redis.Client) *SortedSetStore {
	return &SortedSetStore{client: client}
}

// IncrBy adds delta to the member's score, creating member or key as needed.
func (s *SortedSetStore) IncrBy(ctx context.Context, key, member string, delta float64) error {
	if err := s.client.ZIncrBy(ctx, key, delta, member).Err(); err != nil {
		return fmt.Errorf("zincrby %s %s: %w", key, member, err)
	}
	return nil
}

// Increment is one pending score adjustment.
type Increment struct {
	Key    string
	Member string
	Delta  float64
}

// IncrByAll applies the increments inside a single MULTI/EXEC pipeline, so a
// batch lands as a whole or not at all.
func (s *SortedSetStore) IncrByAll(ctx context.Context, incs []Increment) error {
	if len(incs) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, inc := range incs {
			pipe.ZIncrBy(ctx, inc.Key, inc.Delta, inc.Member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("zincrby pipeline (%d incs): %w", len(incs), err)
	}
	return nil
}

// RevRangeWithScores returns members ordered by descending score over the
// inclusive [start, stop] index window.
func (s *SortedSetStore) RevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s [%d,%d]: %w", key, start, stop, err)
	}
	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("zrevrange %s: unexpected member type %T", key, z.Member)
		}
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

// RevRank returns the member's 0-based descending rank. A member absent from
// the set is reported with the bool, not an error.
func (s *SortedSetStore) RevRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.client.ZRevRank(ctx, key, member).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("zrevrank %s %s: %w", key, member, err)
	}
	return rank, true, nil
}

// Card returns the number of members in the set.
func (s *SortedSetStore) Card(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", key, err)
	}
	return n, nil
}

// ExpireNX sets the key's TTL only if it has none, so an established TTL is
// never pushed out by later writes. It reports whether a TTL was set.
func (s *SortedSetStore) ExpireNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.ExpireNX(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("expire nx %s: %w", key, err)
	}
	return ok, nil
}

// UnionStoreWeighted stores the weighted union of the given keys into dest.
// Weights follow the key order. Returns the member count of dest.
func (s *SortedSetStore) UnionStoreWeighted(ctx context.Context, dest string, keys []string, weights []float64) (int64, error) {
	n, err := s.client.ZUnionStore(ctx, dest, &redis.ZStore{
		Keys:    keys,
		Weights: weights,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zunionstore %s: %w", dest, err)
	}
	return n, nil
}

// SetMarkerNX atomically sets a marker key if absent. It reports whether the
// marker was set; false means another run already claimed it.
func (s *SortedSetStore) SetMarkerNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// DeleteMarker removes a marker key, releasing its claim.
func (s *SortedSetStore) DeleteMarker(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}
