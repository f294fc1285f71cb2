package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/internal/platform/signing"
	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/events"
	"github.com/example/learning-platform/services/progress/internal/store"
	"github.com/example/learning-platform/services/progress/internal/tracker"
)

const (
	maxBatchIDs          = 200
	defaultContinueLimit = 20
	maxContinueLimit     = 100
)

type putProgressReq struct {
	CurrentTime float64 `json:"current_time" validate:"gte=0"`
	Duration    float64 `json:"duration" validate:"gte=0"`
	ClientTsMs  int64   `json:"client_ts_ms" validate:"gte=0"`
}

// GetProgress returns the saved position of one lesson. Anonymous callers
// get position 0.
func GetProgress(repo store.ProgressRepository, log *zap.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		contentID := chi.URLParam(r, "content_id")
		if contentID == "" {
			api.BadRequest(w, "MISSING_ID", "content_id is required", rid, nil)
			return
		}
		uid, _ := auth.UserIDFromContext(r.Context())
		tr := tracker.New(repo, uid, log, tracker.Options{Timeout: timeout})
		pos := tr.Load(r.Context(), contentID)

		out := map[string]any{
			"content_id":            contentID,
			"last_position_seconds": pos,
		}
		if p, ok := tr.Snapshot(contentID); ok {
			out["progress"] = p
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

// BatchProgress returns progress summaries for ?content_ids=a,b,c. Lessons
// without progress are absent from the map.
func BatchProgress(repo store.ProgressRepository, log *zap.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		ids := splitIDs(r.URL.Query().Get("content_ids"))
		if len(ids) == 0 {
			api.BadRequest(w, "MISSING_IDS", "content_ids is required", rid, nil)
			return
		}
		if len(ids) > maxBatchIDs {
			api.BadRequest(w, "TOO_MANY_IDS", "too many content_ids", rid, map[string]any{"max": maxBatchIDs})
			return
		}
		uid, _ := auth.UserIDFromContext(r.Context())
		tr := tracker.New(repo, uid, log, tracker.Options{Timeout: timeout})
		api.WriteJSON(w, http.StatusOK, map[string]any{"progress": tr.LoadAll(r.Context(), ids)})
	}
}

// PutProgress records a playback sample for the caller. With async writes
// enabled the sample is queued and 202 is returned with X-Event-ID.
func PutProgress(repo store.ProgressRepository, pub *EventPublisher, log *zap.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "authentication required", rid)
			return
		}
		contentID := chi.URLParam(r, "content_id")
		if contentID == "" {
			api.BadRequest(w, "MISSING_ID", "content_id is required", rid, nil)
			return
		}
		var req putProgressReq
		if !api.DecodeJSON(w, r, rid, &req) {
			return
		}
		if req.Duration == 0 {
			api.WriteJSON(w, http.StatusOK, map[string]any{"content_id": contentID, "skipped": true})
			return
		}

		if pub.Enabled() {
			eventID, err := pub.PublishPersist(events.Persist{
				UserID:      uid,
				ContentID:   contentID,
				CurrentTime: req.CurrentTime,
				Duration:    req.Duration,
				ClientTsMs:  req.ClientTsMs,
			})
			if err == nil {
				w.Header().Set("X-Event-ID", eventID)
				api.WriteJSON(w, http.StatusAccepted, map[string]any{"event_id": eventID, "status": "queued"})
				return
			}
			log.Warn("async persist publish failed, writing synchronously", zap.String("request_id", rid), zap.Error(err))
		}

		p, err := domain.NewProgress(uid, contentID, req.CurrentTime, req.Duration, time.Now())
		if err != nil {
			api.Unprocessable(w, "INVALID_PROGRESS", err.Error(), rid, nil)
			return
		}
		p.ClientTsMs = domain.OrderingTs(req.ClientTsMs, p.LastAccessedAt)
		ctx, cancel := withTimeout(r, timeout)
		defer cancel()
		out, err := repo.Upsert(ctx, p)
		if err != nil {
			log.Error("persist progress failed", zap.String("request_id", rid), zap.String("content_id", contentID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

// ContinueWatching lists the caller's most recently accessed lessons.
func ContinueWatching(repo store.ProgressRepository, log *zap.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.WriteJSON(w, http.StatusOK, map[string]any{"items": []domain.LessonProgress{}})
			return
		}
		limit := defaultContinueLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				api.BadRequest(w, "INVALID_LIMIT", "limit must be a positive integer", rid, nil)
				return
			}
			limit = min(n, maxContinueLimit)
		}
		var cursor *store.ProgressCursor
		if raw := r.URL.Query().Get("cursor"); raw != "" {
			c, err := decodeCursor(raw)
			if err != nil {
				api.BadRequest(w, "INVALID_CURSOR", "cursor is malformed", rid, nil)
				return
			}
			cursor = &c
		}

		ctx, cancel := withTimeout(r, timeout)
		defer cancel()
		items, err := repo.List(ctx, uid, limit+1, cursor)
		if err != nil {
			log.Error("continue watching failed", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		out := map[string]any{}
		if len(items) > limit {
			items = items[:limit]
			last := items[len(items)-1]
			out["next_cursor"] = encodeCursor(store.ProgressCursor{LastAccessedAt: last.LastAccessedAt, ContentID: last.ContentID})
		}
		if items == nil {
			items = []domain.LessonProgress{}
		}
		out["items"] = items
		api.WriteJSON(w, http.StatusOK, out)
	}
}

type lessonWithProgress struct {
	domain.Lesson
	Progress *domain.Summary `json:"progress,omitempty"`
}

// ModuleLessons lists a module's lessons in order with the caller's
// progress on each. Video URLs are signed for the caller and omitted for
// anonymous requests.
func ModuleLessons(lessons store.LessonRepository, repo store.ProgressRepository, signer *signing.Signer, log *zap.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		moduleID := chi.URLParam(r, "module_id")
		if moduleID == "" {
			api.BadRequest(w, "MISSING_ID", "module_id is required", rid, nil)
			return
		}
		ctx, cancel := withTimeout(r, timeout)
		defer cancel()
		ls, err := lessons.ListByModule(ctx, moduleID)
		if err != nil {
			log.Error("list lessons failed", zap.String("request_id", rid), zap.String("module_id", moduleID), zap.Error(err))
			api.Internal(w, rid)
			return
		}

		uid, authed := auth.UserIDFromContext(r.Context())
		ids := make([]string, len(ls))
		for i, l := range ls {
			ids[i] = l.ID
		}
		progress := tracker.New(repo, uid, log, tracker.Options{Timeout: timeout}).LoadAll(r.Context(), ids)

		out := make([]lessonWithProgress, len(ls))
		for i, l := range ls {
			if !authed {
				l.VideoURL = ""
			} else if signed, err := signer.SignURL(l.VideoURL, uid); err == nil {
				l.VideoURL = signed
			} else {
				log.Warn("sign video url failed", zap.String("lesson_id", l.ID), zap.Error(err))
				l.VideoURL = ""
			}
			out[i] = lessonWithProgress{Lesson: l}
			if p, ok := progress[l.ID]; ok {
				out[i].Progress = &p
			}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"module_id": moduleID, "lessons": out})
	}
}

func splitIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

var errBadCursor = errors.New("bad cursor")

func encodeCursor(c store.ProgressCursor) string {
	raw := strconv.FormatInt(c.LastAccessedAt.UnixNano(), 10) + "|" + c.ContentID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (store.ProgressCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return store.ProgressCursor{}, errBadCursor
	}
	ts, id, ok := strings.Cut(string(b), "|")
	if !ok || id == "" {
		return store.ProgressCursor{}, errBadCursor
	}
	ns, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return store.ProgressCursor{}, errBadCursor
	}
	return store.ProgressCursor{LastAccessedAt: time.Unix(0, ns).UTC(), ContentID: id}, nil
}
