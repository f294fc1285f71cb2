// Package handlers exposes the progress service over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/analytics"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/signing"
	"github.com/example/learning-platform/services/progress/internal/session"
	"github.com/example/learning-platform/services/progress/internal/store"
)

type Deps struct {
	Log       *zap.Logger
	Verifier  auth.JWTVerifier
	Progress  store.ProgressRepository
	Lessons   store.LessonRepository
	Ratings   store.RatingStore
	Sessions  *session.Manager
	Signer    *signing.Signer
	Events    *EventPublisher
	Analytics *analytics.Publisher
	// Timeout bounds each store call made by a handler.
	Timeout time.Duration
}

// Mount registers the /v1 routes. Reads accept anonymous callers and
// answer as if no progress existed; writes require a user.
func Mount(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalUser(d.Verifier))
			r.Get("/modules/{module_id}/lessons", ModuleLessons(d.Lessons, d.Progress, d.Signer, log, d.Timeout))
			r.Get("/progress", BatchProgress(d.Progress, log, d.Timeout))
			r.Get("/progress/{content_id}", GetProgress(d.Progress, log, d.Timeout))
			r.Get("/continue-watching", ContinueWatching(d.Progress, log, d.Timeout))
			r.Get("/lessons/{lesson_id}/rating", GetRating(d.Ratings, log, d.Timeout))
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(d.Verifier))
			r.Put("/progress/{content_id}", PutProgress(d.Progress, d.Events, log, d.Timeout))
			r.Put("/lessons/{lesson_id}/rating", RateLesson(d.Ratings, d.Lessons, d.Analytics, log, d.Timeout))

			r.Post("/sessions", CreateSession(d.Sessions, log))
			r.Route("/sessions/{session_id}", func(r chi.Router) {
				r.Get("/", GetSession(d.Sessions, log))
				r.Delete("/", DeleteSession(d.Sessions, log))
				r.Post("/select", SelectLesson(d.Sessions, log))
				r.Post("/next", NextLesson(d.Sessions, log))
				r.Post("/previous", PreviousLesson(d.Sessions, log))
				r.Post("/events", PlayerEvent(d.Sessions, log))
			})
		})
	})
}

func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), d)
}
