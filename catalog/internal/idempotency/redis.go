package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard implements Guard on a shared Redis instance so every consumer
// replica sees the same markers.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard creates a guard with the given retention window.
// A zero or negative ttl falls back to DefaultTTL.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{
		client: client,
		ttl:    ttl,
	}
}

// TryAccept performs an atomic SET NX EX. Exactly one of any number of
// concurrent callers for the same key observes true. A Redis error is
// returned as-is: the caller must not treat an unreachable store as
// "not yet accepted".
func (g *RedisGuard) TryAccept(ctx context.Context, aggregate, eventID string) (bool, error) {
	key := Key(aggregate, eventID)

	accepted, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: set marker %s: %w", key, err)
	}

	return accepted, nil
}

// Invalidate deletes the marker for an event. Deleting a missing marker is
// not an error.
func (g *RedisGuard) Invalidate(ctx context.Context, aggregate, eventID string) error {
	key := Key(aggregate, eventID)

	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("idempotency: delete marker %s: %w", key, err)
	}

	return nil
}
