package grpcapi

import "github.com/example/learning-platform/services/progress/internal/domain"

type UpsertLessonProgressRequest struct {
	ContentID   string  `json:"content_id"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	ClientTsMs  int64   `json:"client_ts_ms,omitempty"`
}

type UpsertLessonProgressResponse struct {
	Progress *domain.LessonProgress `json:"progress,omitempty"`
	// Skipped is set when the duration was unknown and nothing was written.
	Skipped bool `json:"skipped,omitempty"`
}

type GetLessonProgressRequest struct {
	ContentID string `json:"content_id"`
}

type GetLessonProgressResponse struct {
	Found    bool                   `json:"found"`
	Progress *domain.LessonProgress `json:"progress,omitempty"`
}

type BatchGetLessonProgressRequest struct {
	ContentIDs []string `json:"content_ids"`
}

// BatchGetLessonProgressResponse holds only lessons that have progress.
type BatchGetLessonProgressResponse struct {
	Progress map[string]domain.LessonProgress `json:"progress"`
}
