// Package idempotency deduplicates progress events by event id. A claim
// lives for the store TTL; after that the same id is accepted again.
//
// Backends, best first: Redis SETNX, Postgres processed_events, memory
// (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNoBackend = errors.New("production requires Redis or Postgres for idempotency; in-memory store is not allowed")
	ErrEmptyID   = errors.New("idempotency: empty event id")
)

const (
	defaultTTL = 24 * time.Hour
	// memorySweepAt is how many checks pass between expiry sweeps.
	memorySweepAt = 1024
)

// Store claims event ids.
type Store interface {
	// Check claims eventID and reports whether it was already claimed.
	Check(ctx context.Context, eventID string) (duplicate bool, err error)
	// Forget releases a claim so a failed event can be retried.
	Forget(ctx context.Context, eventID string) error
}

// NewStore picks Redis, then Postgres, then memory, and names the choice.
// When isProd is true the in-memory fallback is refused with ErrNoBackend.
func NewStore(rdb *redis.Client, pool *pgxpool.Pool, ttl time.Duration, isProd bool) (Store, string, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	switch {
	case rdb != nil:
		return &redisStore{client: rdb, ttl: ttl}, "redis", nil
	case pool != nil:
		return &postgresStore{pool: pool, ttl: ttl}, "postgres", nil
	case isProd:
		return nil, "", ErrNoBackend
	default:
		return newMemoryStore(ttl, time.Now), "memory", nil
	}
}
