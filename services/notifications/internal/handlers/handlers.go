// Package handlers exposes the notifications service over HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/services/notifications/internal/broadcast"
	"github.com/example/learning-platform/services/notifications/internal/domain"
	"github.com/example/learning-platform/services/notifications/internal/store"
)

type Deps struct {
	Log         *zap.Logger
	Verifier    auth.JWTVerifier
	Store       store.Store
	Broadcaster *broadcast.Broadcaster
	Timeout     time.Duration
	Now         func() time.Time
}

// Mount registers the /v1 routes; every route requires a user and the admin
// routes also require the admin role.
func Mount(r chi.Router, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.RequireUser(d.Verifier))
		r.Get("/notifications", ListNotifications(d))
		r.Get("/notifications/unread-count", UnreadCount(d))
		r.Post("/notifications/{notification_id}/read", MarkRead(d))
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/admin/notifications", CreateBroadcast(d))
		})
	})
}

type broadcastReq struct {
	Title    string `json:"title" validate:"required,max=200"`
	Body     string `json:"body" validate:"max=4000"`
	Audience string `json:"audience" validate:"omitempty,oneof=all student family admin"`
}

// CreateBroadcast fans a notification out to the requested audience.
func CreateBroadcast(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, _ := auth.UserIDFromContext(r.Context())
		var req broadcastReq
		if !api.DecodeJSON(w, r, rid, &req) {
			return
		}
		ctx, cancel := withTimeout(r, d.Timeout)
		defer cancel()

		res, err := d.Broadcaster.Broadcast(ctx, domain.Notification{
			Title:     req.Title,
			Body:      req.Body,
			Audience:  domain.Audience(req.Audience),
			CreatedBy: uid,
		})
		if err != nil {
			if !api.Fail(w, rid, broadcastError(err, req.Audience)) {
				d.Log.Error("broadcast failed", zap.String("request_id", rid), zap.Error(err))
			}
			return
		}
		api.WriteJSON(w, http.StatusCreated, res)
	}
}

func broadcastError(err error, audience string) error {
	switch {
	case errors.Is(err, broadcast.ErrNoRecipients):
		return api.NewError(http.StatusUnprocessableEntity, "NO_RECIPIENTS", err.Error(), map[string]any{"audience": audience})
	case errors.Is(err, domain.ErrEmptyTitle), errors.Is(err, domain.ErrTooLong), errors.Is(err, domain.ErrInvalidAudience):
		return api.NewError(http.StatusBadRequest, "INVALID_NOTIFICATION", err.Error(), nil)
	}
	return err
}

// ListNotifications returns the caller's inbox, newest first.
// Query: limit (default 50, max 200), unread=true.
func ListNotifications(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, _ := auth.UserIDFromContext(r.Context())

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 200 {
				api.BadRequest(w, "INVALID_LIMIT", "limit must be between 1 and 200", rid, nil)
				return
			}
			limit = n
		}
		unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

		ctx, cancel := withTimeout(r, d.Timeout)
		defer cancel()
		items, err := d.Store.ListForUser(ctx, uid, limit, unreadOnly)
		if err != nil {
			d.Log.Error("list notifications failed", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		unread, err := d.Store.UnreadCount(ctx, uid)
		if err != nil {
			d.Log.Error("unread count failed", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		if items == nil {
			items = []domain.InboxItem{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "unread_count": unread})
	}
}

func UnreadCount(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, _ := auth.UserIDFromContext(r.Context())
		ctx, cancel := withTimeout(r, d.Timeout)
		defer cancel()
		n, err := d.Store.UnreadCount(ctx, uid)
		if err != nil {
			d.Log.Error("unread count failed", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"unread_count": n})
	}
}

// MarkRead marks one notification read for the caller; repeating it is a
// no-op.
func MarkRead(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, _ := auth.UserIDFromContext(r.Context())
		id := chi.URLParam(r, "notification_id")
		ctx, cancel := withTimeout(r, d.Timeout)
		defer cancel()
		if err := d.Store.MarkRead(ctx, uid, id, d.Now()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOTIFICATION_NOT_FOUND", "notification not found", rid)
				return
			}
			d.Log.Error("mark read failed", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), d)
}
