package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

// RatingStore persists one rating per (lesson_id, user_id).
type RatingStore interface {
	Upsert(ctx context.Context, r domain.LessonRating) (domain.LessonRating, error)
	GetUserRating(ctx context.Context, lessonID, userID string) (domain.LessonRating, bool, error)
	GetSummary(ctx context.Context, lessonID string) (domain.RatingSummary, error)
}

// InMemoryRatingStore is a development-only RatingStore.
type InMemoryRatingStore struct {
	mu      sync.RWMutex
	ratings map[string]map[string]domain.LessonRating // lesson_id -> user_id -> rating
	now     func() time.Time
}

func NewInMemoryRatingStore() *InMemoryRatingStore {
	return &InMemoryRatingStore{ratings: make(map[string]map[string]domain.LessonRating), now: time.Now}
}

func (s *InMemoryRatingStore) Upsert(_ context.Context, r domain.LessonRating) (domain.LessonRating, error) {
	if err := domain.ValidateRating(r.Rating); err != nil {
		return domain.LessonRating{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ratings[r.LessonID] == nil {
		s.ratings[r.LessonID] = make(map[string]domain.LessonRating)
	}
	now := s.now().UTC()
	if prev, ok := s.ratings[r.LessonID][r.UserID]; ok {
		r.CreatedAt = prev.CreatedAt
	} else {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.ratings[r.LessonID][r.UserID] = r
	return r, nil
}

func (s *InMemoryRatingStore) GetUserRating(_ context.Context, lessonID, userID string) (domain.LessonRating, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ratings[lessonID][userID]
	return r, ok, nil
}

func (s *InMemoryRatingStore) GetSummary(_ context.Context, lessonID string) (domain.RatingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := s.ratings[lessonID]
	if len(users) == 0 {
		return domain.RatingSummary{LessonID: lessonID}, nil
	}
	total := 0
	for _, r := range users {
		total += r.Rating
	}
	return domain.RatingSummary{
		LessonID:      lessonID,
		AverageRating: float64(total) / float64(len(users)),
		TotalRatings:  len(users),
	}, nil
}
