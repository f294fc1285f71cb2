// Package domain holds the lesson, progress and rating types shared by the
// progress service packages, plus the completion arithmetic.
package domain

import (
	"errors"
	"math"
	"time"
)

// CompletionThreshold is the watched percentage at which a lesson counts as completed.
const CompletionThreshold = 90

var (
	ErrDurationUnknown = errors.New("media duration unknown")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrMissingID       = errors.New("user_id and content_id are required")
)

// LessonProgress is the single row kept per (UserID, ContentID).
type LessonProgress struct {
	UserID               string     `json:"user_id"`
	ContentID            string     `json:"content_id"`
	LastPositionSeconds  int        `json:"last_position_seconds"`
	TotalDurationSeconds int        `json:"total_duration_seconds"`
	CompletionPercentage int        `json:"completion_percentage"`
	IsCompleted          bool       `json:"is_completed"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	LastAccessedAt       time.Time  `json:"last_accessed_at"`
	// ClientTsMs orders writes; the stores ignore a write older than the row.
	ClientTsMs int64 `json:"client_ts_ms"`
}

// Summary is the compact per-lesson view used by lesson lists.
type Summary struct {
	Percentage int  `json:"percentage"`
	Completed  bool `json:"completed"`
}

func (p LessonProgress) Summary() Summary {
	return Summary{Percentage: p.CompletionPercentage, Completed: p.IsCompleted}
}

// Compute returns floor(current*100/duration) and whether it reaches the
// completion threshold. current is clamped to [0, duration].
func Compute(current, duration float64) (int, bool, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return 0, false, ErrDurationUnknown
	}
	current = clamp(current, duration)
	pct := int(math.Floor(current * 100 / duration))
	return pct, pct >= CompletionThreshold, nil
}

// NewProgress builds the row written for a playback sample at now.
func NewProgress(userID, contentID string, current, duration float64, now time.Time) (LessonProgress, error) {
	if userID == "" || contentID == "" {
		return LessonProgress{}, ErrMissingID
	}
	pct, done, err := Compute(current, duration)
	if err != nil {
		return LessonProgress{}, err
	}
	now = now.UTC()
	p := LessonProgress{
		UserID:               userID,
		ContentID:            contentID,
		LastPositionSeconds:  int(math.Floor(clamp(current, duration))),
		TotalDurationSeconds: int(math.Floor(duration)),
		CompletionPercentage: pct,
		IsCompleted:          done,
		LastAccessedAt:       now,
		ClientTsMs:           now.UnixMilli(),
	}
	if done {
		p.CompletedAt = &now
	}
	return p, nil
}

// Merge applies incoming over the stored row prev. CompletedAt is sticky:
// the first completion time is kept across later writes.
func Merge(prev *LessonProgress, incoming LessonProgress) LessonProgress {
	if prev != nil && prev.CompletedAt != nil {
		at := *prev.CompletedAt
		incoming.CompletedAt = &at
	}
	return incoming
}

// ClientTsWindow bounds client-supplied client_ts_ms values. Every row is
// ordered on the server clock; a client value is kept only when it lies in
// [received-ClientTsWindow, received], which still orders a device's own
// overlapping requests.
const ClientTsWindow = 5 * time.Second

// OrderingTs returns the client_ts_ms to store for a write received at
// received. Missing, future or too old client values become the server time.
func OrderingTs(clientTs int64, received time.Time) int64 {
	srv := received.UnixMilli()
	if clientTs <= 0 || clientTs > srv || srv-clientTs > ClientTsWindow.Milliseconds() {
		return srv
	}
	return clientTs
}

// FutureCutoffMs is the largest stored client_ts_ms that may still block
// incoming at now. Keys beyond it cannot come from the server clock and are
// overwritten.
func FutureCutoffMs(incoming LessonProgress, now time.Time) int64 {
	ref := now
	if incoming.LastAccessedAt.After(ref) {
		ref = incoming.LastAccessedAt
	}
	return ref.Add(ClientTsWindow).UnixMilli()
}

// IsStale reports whether incoming must be ignored because stored is newer.
func IsStale(stored, incoming LessonProgress, now time.Time) bool {
	if stored.ClientTsMs > FutureCutoffMs(incoming, now) {
		return false
	}
	return stored.ClientTsMs > incoming.ClientTsMs
}

func clamp(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
