package domain

import (
	"sort"
	"time"
)

// Lesson is a playable unit inside a module. VideoURL is empty for lessons
// without media.
type Lesson struct {
	ID              string `json:"id"`
	ModuleID        string `json:"module_id"`
	Title           string `json:"title"`
	VideoURL        string `json:"video_url,omitempty"`
	Position        int    `json:"position"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Module is an ordered group of lessons within a trail.
type Module struct {
	ID       string `json:"id"`
	TrailID  string `json:"trail_id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// SortLessons orders lessons by Position, then ID, in place.
func SortLessons(ls []Lesson) {
	sort.SliceStable(ls, func(i, j int) bool {
		if ls[i].Position != ls[j].Position {
			return ls[i].Position < ls[j].Position
		}
		return ls[i].ID < ls[j].ID
	})
}

// LessonRating is one user's 1–5 rating of a lesson.
type LessonRating struct {
	LessonID  string    `json:"lesson_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ValidateRating(r int) error {
	if r < 1 || r > 5 {
		return ErrInvalidRating
	}
	return nil
}

// RatingSummary aggregates all ratings of a lesson.
type RatingSummary struct {
	LessonID      string  `json:"lesson_id"`
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int     `json:"total_ratings"`
}
