// Package tracker is the session-scoped progress store: a cache of lesson
// progress for one signed-in user, reconciled with the persistence gateway.
//
// Every operation is best effort. Reads fail open to "no saved progress" and
// failed writes are logged and dropped; nothing here interrupts playback.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/metrics"
	"github.com/example/learning-platform/services/progress/internal/store"
)

// ErrUnauthenticated is returned by Persist when the tracker has no user.
var ErrUnauthenticated = errors.New("no authenticated user")

const defaultTimeout = 10 * time.Second

// Options tunes a Tracker. Zero values select defaults.
type Options struct {
	// Timeout bounds each gateway call.
	Timeout time.Duration
	Now     func() time.Time
}

type Tracker struct {
	repo    store.ProgressRepository
	userID  string
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	cache  map[string]domain.LessonProgress
	lastTs int64
	locks  map[string]*sync.Mutex
}

// New returns a tracker for userID. An empty userID yields a tracker whose
// operations are silent no-ops.
func New(repo store.ProgressRepository, userID string, log *zap.Logger, opts Options) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		repo:    repo,
		userID:  userID,
		log:     log.With(zap.String("component", "tracker"), zap.String("user_id", userID)),
		timeout: opts.Timeout,
		now:     opts.Now,
		cache:   make(map[string]domain.LessonProgress),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (t *Tracker) UserID() string { return t.userID }

// Load returns the saved position for contentID, or 0 when there is none,
// the user is anonymous or the gateway fails.
func (t *Tracker) Load(ctx context.Context, contentID string) int {
	if t.userID == "" || contentID == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	p, ok, err := t.repo.Get(ctx, t.userID, contentID)
	if err != nil {
		metrics.IncLoadFailure("load")
		t.log.Warn("load progress failed", zap.String("content_id", contentID), zap.Error(err))
		return 0
	}
	if !ok {
		if cur, cached := t.Snapshot(contentID); cached {
			return cur.LastPositionSeconds
		}
		return 0
	}
	return t.apply(p).LastPositionSeconds
}

// LoadAll fetches progress for several lessons in one round trip. Lessons
// without progress are absent from the result.
func (t *Tracker) LoadAll(ctx context.Context, contentIDs []string) map[string]domain.Summary {
	out := make(map[string]domain.Summary)
	if t.userID == "" {
		return out
	}
	ids := dedupe(contentIDs)
	if len(ids) == 0 {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	rows, err := t.repo.GetMany(ctx, t.userID, ids)
	if err != nil {
		metrics.IncLoadFailure("load_all")
		t.log.Warn("load progress batch failed", zap.Int("count", len(ids)), zap.Error(err))
		return out
	}
	for _, p := range rows {
		cur := t.apply(p)
		out[cur.ContentID] = cur.Summary()
	}
	return out
}

// Persist records a playback sample. Zero or unknown durations are skipped
// without contacting the gateway. Persists of the same lesson are
// serialised, and each carries a strictly increasing client timestamp so a
// late response never overwrites a newer one in the cache.
//
// When the gateway keeps a newer row the write is counted as stale, logged,
// and that row is returned. The returned error is informational: it has
// already been logged.
func (t *Tracker) Persist(ctx context.Context, contentID string, current, duration float64) (domain.LessonProgress, error) {
	if t.userID == "" {
		return domain.LessonProgress{}, ErrUnauthenticated
	}
	p, err := domain.NewProgress(t.userID, contentID, current, duration, t.now())
	if err != nil {
		metrics.IncPersist(metrics.PersistSkipped)
		t.log.Debug("persist skipped", zap.String("content_id", contentID), zap.Error(err))
		return domain.LessonProgress{}, err
	}
	p.ClientTsMs = t.nextTs(p.LastAccessedAt)

	lock := t.lockFor(contentID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	out, err := t.repo.Upsert(ctx, p)
	metrics.ObservePersistSeconds(time.Since(start).Seconds())
	if err != nil {
		metrics.IncPersist(metrics.PersistFailed)
		t.log.Warn("persist progress failed",
			zap.String("content_id", contentID),
			zap.Int("position", p.LastPositionSeconds),
			zap.Error(err))
		return domain.LessonProgress{}, err
	}
	if out.ClientTsMs != p.ClientTsMs {
		metrics.IncPersist(metrics.PersistStale)
		t.log.Warn("persist superseded by newer stored row",
			zap.String("content_id", contentID),
			zap.Int("position", p.LastPositionSeconds),
			zap.Int("stored_position", out.LastPositionSeconds),
			zap.Int64("client_ts_ms", p.ClientTsMs),
			zap.Int64("stored_client_ts_ms", out.ClientTsMs))
		return t.apply(out), nil
	}
	metrics.IncPersist(metrics.PersistOK)
	return t.apply(out), nil
}

// Snapshot returns the cached row for contentID.
func (t *Tracker) Snapshot(contentID string) (domain.LessonProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.cache[contentID]
	return p, ok
}

// apply stores p unless the cache already holds a newer row, and returns
// the row that is current afterwards.
func (t *Tracker) apply(p domain.LessonProgress) domain.LessonProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.cache[p.ContentID]; ok && domain.IsStale(cur, p, t.now()) {
		metrics.IncPersist(metrics.PersistStale)
		return cur
	}
	t.cache[p.ContentID] = p
	return p
}

func (t *Tracker) nextTs(at time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := at.UnixMilli()
	if ts <= t.lastTs {
		ts = t.lastTs + 1
	}
	t.lastTs = ts
	return ts
}

func (t *Tracker) lockFor(contentID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[contentID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[contentID] = l
	}
	return l
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
