package store

import (
	"context"
	"sync"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

// LessonRepository reads the catalog of lessons. The progress service never
// writes lessons; the admin panel owns them.
type LessonRepository interface {
	// ListByModule returns the module's lessons ordered by position.
	ListByModule(ctx context.Context, moduleID string) ([]domain.Lesson, error)
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, lessonID string) (domain.Lesson, error)
}

// InMemoryLessonRepository is a development-only implementation seeded via Put.
type InMemoryLessonRepository struct {
	mu      sync.RWMutex
	lessons map[string]domain.Lesson
}

func NewInMemoryLessonRepository(seed ...domain.Lesson) *InMemoryLessonRepository {
	r := &InMemoryLessonRepository{lessons: make(map[string]domain.Lesson)}
	r.Put(seed...)
	return r
}

func (r *InMemoryLessonRepository) Put(ls ...domain.Lesson) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range ls {
		r.lessons[l.ID] = l
	}
}

func (r *InMemoryLessonRepository) ListByModule(_ context.Context, moduleID string) ([]domain.Lesson, error) {
	r.mu.RLock()
	var out []domain.Lesson
	for _, l := range r.lessons {
		if l.ModuleID == moduleID {
			out = append(out, l)
		}
	}
	r.mu.RUnlock()
	domain.SortLessons(out)
	return out, nil
}

func (r *InMemoryLessonRepository) Get(_ context.Context, lessonID string) (domain.Lesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lessons[lessonID]
	if !ok {
		return domain.Lesson{}, ErrNotFound
	}
	return l, nil
}
