package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper answers whether a provider message id has been seen before. The
// fast path for provider webhook retries; the inbox unique constraint is the
// durable backstop when this layer is unavailable.
type Deduper interface {
	// Seen marks the message as seen and reports whether it already was.
	Seen(ctx context.Context, provider, providerMessageID string) (bool, error)
}

// RedisDeduper implements Deduper with SETNX and a TTL comfortably longer
// than any provider's retry horizon.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, provider, providerMessageID string) (bool, error) {
	key := fmt.Sprintf("sms:inbound:seen:%s:%s", provider, providerMessageID)
	set, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return !set, nil
}
