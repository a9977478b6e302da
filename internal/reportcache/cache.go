// Package reportcache keeps computed ledger reports in Redis, keyed by a generation counter
// that every recorded sale increments.
package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "stockledger:reports:"
	generationKey = keyPrefix + "generation"
)

// Cache stores report payloads as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps a Redis client. Entries expire after ttl; zero keeps them until evicted.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Generation returns the current ledger generation, zero when no sale has been counted yet.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reportcache: generation: %w", err)
	}
	return gen, nil
}

// Load decodes the entry under key into dst and reports whether it existed.
func (c *Cache) Load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reportcache: load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("reportcache: decode %s: %w", key, err)
	}
	return true, nil
}

// Store writes value under key.
func (c *Cache) Store(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("reportcache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("reportcache: store %s: %w", key, err)
	}
	return nil
}

// Bump advances the generation so entries built before it are never read again.
func (c *Cache) Bump(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("reportcache: bump: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
