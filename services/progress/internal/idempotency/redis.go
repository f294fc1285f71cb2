package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "progress:idempotent:"

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func key(eventID string) string { return keyPrefix + eventID }

// Check relies on SETNX: the key is set only when no live claim exists, and
// Redis expires it after the TTL.
func (s *redisStore) Check(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyID
	}
	claimed, err := s.client.SetNX(ctx, key(eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

func (s *redisStore) Forget(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, key(eventID)).Err()
}
