// Package store is the persistence gateway of the progress service: lesson
// progress, lessons and ratings, each with a Postgres and an in-memory
// implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

var ErrNotFound = errors.New("not found")

// ProgressCursor is the decoded form of the opaque continue-watching cursor.
type ProgressCursor struct {
	LastAccessedAt time.Time
	ContentID      string
}

// ProgressRepository defines persistence operations for lesson progress,
// keyed by (user_id, content_id).
type ProgressRepository interface {
	// Get returns the row for the pair; ok is false when none exists.
	Get(ctx context.Context, userID, contentID string) (p domain.LessonProgress, ok bool, err error)
	// GetMany returns the rows that exist among contentIDs. Missing ids are
	// simply absent from the result.
	GetMany(ctx context.Context, userID string, contentIDs []string) ([]domain.LessonProgress, error)
	// Upsert inserts or updates the row, ignoring stale writes
	// (client_ts_ms older than the stored one). CompletedAt is kept from the
	// first completion. Returns the current (possibly unchanged) row.
	Upsert(ctx context.Context, p domain.LessonProgress) (domain.LessonProgress, error)
	// List returns up to limit rows ordered by last_accessed_at DESC.
	// cursor, if non-nil, is an exclusive bound for keyset pagination.
	List(ctx context.Context, userID string, limit int, cursor *ProgressCursor) ([]domain.LessonProgress, error)
}
