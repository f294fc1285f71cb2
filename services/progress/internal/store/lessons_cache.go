package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

// CachedLessonRepository is a Redis read-through cache in front of another
// LessonRepository. Concurrent misses for the same key share one backend
// read. Redis failures degrade to the backend.
type CachedLessonRepository struct {
	next   LessonRepository
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
	group  singleflight.Group
}

func NewCachedLessonRepository(next LessonRepository, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedLessonRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedLessonRepository{next: next, client: client, ttl: ttl, log: log}
}

func moduleKey(moduleID string) string { return "lessons:module:" + moduleID }
func lessonKey(lessonID string) string { return "lessons:id:" + lessonID }

func (c *CachedLessonRepository) ListByModule(ctx context.Context, moduleID string) ([]domain.Lesson, error) {
	key := moduleKey(moduleID)
	var cached []domain.Lesson
	if c.get(ctx, key, &cached) {
		return cached, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		ls, err := c.next.ListByModule(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, ls)
		return ls, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Lesson), nil
}

func (c *CachedLessonRepository) Get(ctx context.Context, lessonID string) (domain.Lesson, error) {
	key := lessonKey(lessonID)
	var cached domain.Lesson
	if c.get(ctx, key, &cached) {
		return cached, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		l, err := c.next.Get(ctx, lessonID)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, l)
		return l, nil
	})
	if err != nil {
		return domain.Lesson{}, err
	}
	return v.(domain.Lesson), nil
}

// Invalidate drops the cached module list and lesson entries.
func (c *CachedLessonRepository) Invalidate(ctx context.Context, moduleID string, lessonIDs ...string) error {
	keys := []string{moduleKey(moduleID)}
	for _, id := range lessonIDs {
		keys = append(keys, lessonKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *CachedLessonRepository) get(ctx context.Context, key string, dest any) bool {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("lesson cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		c.log.Warn("lesson cache decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedLessonRepository) set(ctx context.Context, key string, value any) {
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.Warn("lesson cache set failed", zap.String("key", key), zap.Error(err))
	}
}
