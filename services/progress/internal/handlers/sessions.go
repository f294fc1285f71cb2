package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/services/progress/internal/playback"
	"github.com/example/learning-platform/services/progress/internal/session"
	"github.com/example/learning-platform/services/progress/internal/store"
)

type createSessionReq struct {
	ModuleID string `json:"module_id" validate:"required"`
	LessonID string `json:"lesson_id"`
}

type selectReq struct {
	LessonID string `json:"lesson_id" validate:"required"`
}

type eventReq struct {
	Type        string  `json:"type" validate:"required,oneof=ready play timeupdate pause ended"`
	CurrentTime float64 `json:"current_time" validate:"gte=0"`
	Duration    float64 `json:"duration" validate:"gte=0"`
}

type moveResp struct {
	session.View
	Moved bool `json:"moved"`
}

func CreateSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "authentication required", rid)
			return
		}
		var req createSessionReq
		if !api.DecodeJSON(w, r, rid, &req) {
			return
		}
		s, err := m.Create(r.Context(), uid, req.ModuleID, req.LessonID)
		if err != nil {
			writeSessionError(w, rid, log, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, s.Snapshot(r.Context()))
	}
}

func GetSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return withSession(m, log, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		api.WriteJSON(w, http.StatusOK, s.Snapshot(r.Context()))
	})
}

func DeleteSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "authentication required", rid)
			return
		}
		if err := m.Delete(chi.URLParam(r, "session_id"), uid); err != nil {
			writeSessionError(w, rid, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SelectLesson(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return withSession(m, log, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req selectReq
		if !api.DecodeJSON(w, r, rid, &req) {
			return
		}
		v, err := s.Select(req.LessonID)
		if err != nil {
			writeSessionError(w, rid, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, v)
	})
}

func NextLesson(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return withSession(m, log, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		v, moved := s.Next()
		api.WriteJSON(w, http.StatusOK, moveResp{View: v, Moved: moved})
	})
}

func PreviousLesson(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return withSession(m, log, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		v, moved := s.Previous()
		api.WriteJSON(w, http.StatusOK, moveResp{View: v, Moved: moved})
	})
}

// PlayerEvent applies a client player event. The response carries seek_to
// when the client must jump to a saved position.
func PlayerEvent(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return withSession(m, log, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req eventReq
		if !api.DecodeJSON(w, r, rid, &req) {
			return
		}
		v, err := s.Event(r.Context(), session.Event{
			Type:        playback.EventType(req.Type),
			CurrentTime: req.CurrentTime,
			Duration:    req.Duration,
		})
		if err != nil {
			writeSessionError(w, rid, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, v)
	})
}

func withSession(m *session.Manager, log *zap.Logger, next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "authentication required", rid)
			return
		}
		s, err := m.Get(chi.URLParam(r, "session_id"), uid)
		if err != nil {
			writeSessionError(w, rid, log, err)
			return
		}
		next(w, r, s)
	}
}

func writeSessionError(w http.ResponseWriter, rid string, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		api.NotFound(w, "SESSION_NOT_FOUND", "session not found", rid)
	case errors.Is(err, session.ErrForbidden):
		api.Forbidden(w, "SESSION_FORBIDDEN", "session belongs to another user", rid)
	case errors.Is(err, session.ErrEmptyModule), errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "MODULE_NOT_FOUND", "module not found or empty", rid)
	case errors.Is(err, session.ErrUnknownLesson):
		api.Unprocessable(w, "UNKNOWN_LESSON", err.Error(), rid, nil)
	case errors.Is(err, playback.ErrUnknownEvent):
		api.BadRequest(w, "UNKNOWN_EVENT", err.Error(), rid, nil)
	case errors.Is(err, playback.ErrDetached):
		api.Conflict(w, "NO_ACTIVE_PLAYER", "no player is loaded for the current lesson", rid, nil)
	default:
		log.Error("session request failed", zap.String("request_id", rid), zap.Error(err))
		api.Internal(w, rid)
	}
}
