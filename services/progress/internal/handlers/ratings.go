package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/analytics"
	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/store"
)

type rateReq struct {
	Rating int `json:"rating" validate:"min=1,max=5"`
}

// GetRating returns the aggregate rating for a lesson, including the
// caller's own rating when authenticated.
func GetRating(ratings store.RatingStore, log *zap.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		lessonID := chi.URLParam(r, "lesson_id")
		if lessonID == "" {
			api.BadRequest(w, "MISSING_ID", "lesson_id is required", rid, nil)
			return
		}
		ctx, cancel := withTimeout(r, timeout)
		defer cancel()

		sum, err := ratings.GetSummary(ctx, lessonID)
		if err != nil {
			log.Error("rating summary failed", zap.String("request_id", rid), zap.String("lesson_id", lessonID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		out := map[string]any{
			"lesson_id":      lessonID,
			"average_rating": sum.AverageRating,
			"total_ratings":  sum.TotalRatings,
		}
		if uid, ok := auth.UserIDFromContext(r.Context()); ok {
			mine, found, err := ratings.GetUserRating(ctx, lessonID, uid)
			if err != nil {
				log.Warn("user rating lookup failed", zap.String("request_id", rid), zap.Error(err))
			} else if found {
				out["user_rating"] = mine.Rating
			}
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

// RateLesson submits or updates the caller's 1-5 rating of a lesson.
func RateLesson(ratings store.RatingStore, lessons store.LessonRepository, pub *analytics.Publisher, log *zap.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "authentication required", rid)
			return
		}
		lessonID := chi.URLParam(r, "lesson_id")
		if lessonID == "" {
			api.BadRequest(w, "MISSING_ID", "lesson_id is required", rid, nil)
			return
		}
		var req rateReq
		if !api.DecodeJSON(w, r, rid, &req) {
			return
		}

		ctx, cancel := withTimeout(r, timeout)
		defer cancel()
		if _, err := lessons.Get(ctx, lessonID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "LESSON_NOT_FOUND", "lesson not found", rid)
				return
			}
			log.Error("lesson lookup failed", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		saved, err := ratings.Upsert(ctx, domain.LessonRating{LessonID: lessonID, UserID: uid, Rating: req.Rating})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidRating) {
				api.BadRequest(w, "INVALID_RATING", err.Error(), rid, nil)
				return
			}
			log.Error("rating upsert failed", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		sum, err := ratings.GetSummary(ctx, lessonID)
		if err != nil {
			log.Error("rating summary failed", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		pub.Publish(analytics.SubjectLessonRated, "lesson_rated", uid, map[string]any{
			"lesson_id": lessonID,
			"rating":    saved.Rating,
		})
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"lesson_id":      lessonID,
			"user_rating":    saved.Rating,
			"average_rating": sum.AverageRating,
			"total_ratings":  sum.TotalRatings,
		})
	}
}
