package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

type progressKey struct {
	userID    string
	contentID string
}

// InMemoryProgressRepository is a development-only implementation.
type InMemoryProgressRepository struct {
	mu   sync.RWMutex
	rows map[progressKey]domain.LessonProgress
	now  func() time.Time
}

func NewInMemoryProgressRepository() *InMemoryProgressRepository {
	return &InMemoryProgressRepository{rows: make(map[progressKey]domain.LessonProgress), now: time.Now}
}

func (r *InMemoryProgressRepository) Get(_ context.Context, userID, contentID string) (domain.LessonProgress, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.rows[progressKey{userID, contentID}]
	return p, ok, nil
}

func (r *InMemoryProgressRepository) GetMany(_ context.Context, userID string, contentIDs []string) ([]domain.LessonProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.LessonProgress, 0, len(contentIDs))
	seen := make(map[string]bool, len(contentIDs))
	for _, id := range contentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.rows[progressKey{userID, id}]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *InMemoryProgressRepository) Upsert(_ context.Context, p domain.LessonProgress) (domain.LessonProgress, error) {
	if p.UserID == "" || p.ContentID == "" {
		return domain.LessonProgress{}, domain.ErrMissingID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := progressKey{p.UserID, p.ContentID}
	prev, ok := r.rows[k]
	if ok && domain.IsStale(prev, p, r.now()) {
		return prev, nil
	}
	var prevPtr *domain.LessonProgress
	if ok {
		prevPtr = &prev
	}
	next := domain.Merge(prevPtr, p)
	r.rows[k] = next
	return next, nil
}

func (r *InMemoryProgressRepository) List(_ context.Context, userID string, limit int, cursor *ProgressCursor) ([]domain.LessonProgress, error) {
	r.mu.RLock()
	var all []domain.LessonProgress
	for k, p := range r.rows {
		if k.userID == userID {
			all = append(all, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return after(all[i], all[j]) })

	out := make([]domain.LessonProgress, 0, limit)
	for _, p := range all {
		if cursor != nil && !after(cursorRow(*cursor), p) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// cursorRow turns a cursor into a comparable row.
func cursorRow(c ProgressCursor) domain.LessonProgress {
	return domain.LessonProgress{LastAccessedAt: c.LastAccessedAt, ContentID: c.ContentID}
}

// after orders by (last_accessed_at, content_id) descending.
func after(a, b domain.LessonProgress) bool {
	if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
		return a.LastAccessedAt.After(b.LastAccessedAt)
	}
	return a.ContentID > b.ContentID
}
