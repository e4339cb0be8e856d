// Package cache wraps the Redis client behind the two stores the system
// needs: a small KV cache for catalog hot reads and a sorted-set store for
// the ranking pipeline.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// NewLazyClient creates a client without verifying the connection. Commands
// fail individually while Redis is unreachable and heal when it returns, so
// callers that can degrade should prefer this over NewClient.
func NewLazyClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// KVCache is a read-through byte cache. Misses are reported with the bool,
// not an error.
type KVCache struct {
	client *redis.Client
}

// NewKVCache creates a KVCache on the given client.
func NewKVCache(client *redis.Client) *KVCache {
	return &KVCache{client: client}
}

// Get returns the cached value and whether the key was present.
func (c *KVCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key with the given TTL.
func (c *KVCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete evicts keys. Missing keys are not an error.
func (c *KVCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
