package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/store"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func fixedNow(at time.Time) func() time.Time { return func() time.Time { return at } }

func newTracker(repo store.ProgressRepository, uid string) *Tracker {
	return New(repo, uid, zap.NewNop(), Options{Timeout: time.Second, Now: fixedNow(t0)})
}

// countingRepo records gateway calls and the number of concurrent upserts.
type countingRepo struct {
	store.ProgressRepository
	upserts  atomic.Int32
	gets     atomic.Int32
	inflight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	err      error
}

func (r *countingRepo) Get(ctx context.Context, uid, cid string) (domain.LessonProgress, bool, error) {
	r.gets.Add(1)
	if r.err != nil {
		return domain.LessonProgress{}, false, r.err
	}
	return r.ProgressRepository.Get(ctx, uid, cid)
}

func (r *countingRepo) GetMany(ctx context.Context, uid string, ids []string) ([]domain.LessonProgress, error) {
	r.gets.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.ProgressRepository.GetMany(ctx, uid, ids)
}

func (r *countingRepo) Upsert(ctx context.Context, p domain.LessonProgress) (domain.LessonProgress, error) {
	r.upserts.Add(1)
	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return domain.LessonProgress{}, r.err
	}
	return r.ProgressRepository.Upsert(ctx, p)
}

func TestPersist_ComputesPercentageAndCompletion(t *testing.T) {
	cases := []struct {
		name      string
		cur, dur  float64
		pct       int
		completed bool
	}{
		{"start", 0, 300, 0, false},
		{"floor", 100, 300, 33, false},
		{"just below threshold", 269, 300, 89, false},
		{"threshold", 270, 300, 90, true},
		{"end", 300, 300, 100, true},
		{"past end is clamped", 400, 300, 100, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTracker(store.NewInMemoryProgressRepository(), "u1")
			got, err := tr.Persist(context.Background(), "l1", tc.cur, tc.dur)
			if err != nil {
				t.Fatalf("persist: %v", err)
			}
			if got.CompletionPercentage != tc.pct || got.IsCompleted != tc.completed {
				t.Fatalf("got pct=%d completed=%v, want %d %v", got.CompletionPercentage, got.IsCompleted, tc.pct, tc.completed)
			}
			if got.CompletionPercentage < 0 || got.CompletionPercentage > 100 {
				t.Fatalf("percentage out of range: %d", got.CompletionPercentage)
			}
		})
	}
}

func TestPersist_ZeroDurationSkipsGateway(t *testing.T) {
	repo := &countingRepo{ProgressRepository: store.NewInMemoryProgressRepository()}
	tr := newTracker(repo, "u1")

	_, err := tr.Persist(context.Background(), "l1", 10, 0)
	if !errors.Is(err, domain.ErrDurationUnknown) {
		t.Fatalf("expected ErrDurationUnknown, got %v", err)
	}
	if n := repo.upserts.Load(); n != 0 {
		t.Fatalf("expected no gateway call, got %d", n)
	}
	if _, ok := tr.Snapshot("l1"); ok {
		t.Fatalf("expected nothing cached")
	}
}

func TestUnauthenticated_IsNoop(t *testing.T) {
	repo := &countingRepo{ProgressRepository: store.NewInMemoryProgressRepository()}
	tr := newTracker(repo, "")
	ctx := context.Background()

	if pos := tr.Load(ctx, "l1"); pos != 0 {
		t.Fatalf("Load = %d, want 0", pos)
	}
	if got := tr.LoadAll(ctx, []string{"l1", "l2"}); len(got) != 0 {
		t.Fatalf("LoadAll = %v, want empty", got)
	}
	if _, err := tr.Persist(ctx, "l1", 10, 100); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if repo.gets.Load() != 0 || repo.upserts.Load() != 0 {
		t.Fatalf("expected no gateway calls, gets=%d upserts=%d", repo.gets.Load(), repo.upserts.Load())
	}
}

func TestLoad_ReturnsSavedPosition(t *testing.T) {
	repo := store.NewInMemoryProgressRepository()
	first := newTracker(repo, "u1")
	if _, err := first.Persist(context.Background(), "l1", 125.7, 600); err != nil {
		t.Fatalf("persist: %v", err)
	}

	second := newTracker(repo, "u1")
	if pos := second.Load(context.Background(), "l1"); pos != 125 {
		t.Fatalf("Load = %d, want 125", pos)
	}
	if pos := second.Load(context.Background(), "missing"); pos != 0 {
		t.Fatalf("Load(missing) = %d, want 0", pos)
	}
}

func TestLoadAll_AbsentEntriesStayAbsent(t *testing.T) {
	repo := store.NewInMemoryProgressRepository()
	tr := newTracker(repo, "u1")
	ctx := context.Background()
	if _, err := tr.Persist(ctx, "l1", 50, 100); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if _, err := tr.Persist(ctx, "l3", 95, 100); err != nil {
		t.Fatalf("persist: %v", err)
	}

	got := tr.LoadAll(ctx, []string{"l1", "l2", "l3", "l1"})
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if _, ok := got["l2"]; ok {
		t.Fatalf("l2 must be absent, not zero-filled")
	}
	if got["l1"] != (domain.Summary{Percentage: 50}) {
		t.Fatalf("l1 = %+v", got["l1"])
	}
	if got["l3"] != (domain.Summary{Percentage: 95, Completed: true}) {
		t.Fatalf("l3 = %+v", got["l3"])
	}
}

func TestGatewayFailures_FailOpen(t *testing.T) {
	repo := &countingRepo{ProgressRepository: store.NewInMemoryProgressRepository(), err: errors.New("db down")}
	tr := newTracker(repo, "u1")
	ctx := context.Background()

	if pos := tr.Load(ctx, "l1"); pos != 0 {
		t.Fatalf("Load = %d, want 0", pos)
	}
	if got := tr.LoadAll(ctx, []string{"l1"}); len(got) != 0 {
		t.Fatalf("LoadAll = %v, want empty", got)
	}
	if _, err := tr.Persist(ctx, "l1", 10, 100); err == nil {
		t.Fatalf("expected persist error")
	}
	if _, ok := tr.Snapshot("l1"); ok {
		t.Fatalf("failed persist must not update the cache")
	}
}

func TestCompletedAt_StickyAcrossRewatch(t *testing.T) {
	repo := store.NewInMemoryProgressRepository()
	now := t0
	tr := New(repo, "u1", zap.NewNop(), Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	done, err := tr.Persist(ctx, "l1", 100, 100)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatalf("expected completed_at set")
	}

	now = t0.Add(time.Hour)
	again, err := tr.Persist(ctx, "l1", 10, 100)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if again.IsCompleted {
		t.Fatalf("is_completed reflects the current position")
	}
	if again.CompletedAt == nil || !again.CompletedAt.Equal(t0) {
		t.Fatalf("completed_at = %v, want %v", again.CompletedAt, t0)
	}
}

func TestPersist_SequenceIsStrictlyIncreasing(t *testing.T) {
	repo := store.NewInMemoryProgressRepository()
	tr := newTracker(repo, "u1")
	ctx := context.Background()

	a, _ := tr.Persist(ctx, "l1", 10, 100)
	b, _ := tr.Persist(ctx, "l1", 20, 100)
	if b.ClientTsMs <= a.ClientTsMs {
		t.Fatalf("expected increasing client ts, got %d then %d", a.ClientTsMs, b.ClientTsMs)
	}
	if b.LastPositionSeconds != 20 {
		t.Fatalf("second write within the same millisecond was dropped")
	}
}

func TestPersist_SerialisedPerLesson(t *testing.T) {
	repo := &countingRepo{ProgressRepository: store.NewInMemoryProgressRepository(), delay: 5 * time.Millisecond}
	tr := newTracker(repo, "u1")

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(pos float64) {
			defer wg.Done()
			_, _ = tr.Persist(context.Background(), "l1", pos, 100)
		}(float64(i * 10))
	}
	wg.Wait()

	if m := repo.maxSeen.Load(); m != 1 {
		t.Fatalf("expected persists of one lesson serialised, saw %d in flight", m)
	}
	cached, _ := tr.Snapshot("l1")
	stored, _, _ := repo.ProgressRepository.Get(context.Background(), "u1", "l1")
	if cached.ClientTsMs != stored.ClientTsMs {
		t.Fatalf("cache (%d) disagrees with store (%d)", cached.ClientTsMs, stored.ClientTsMs)
	}
}

// gatedRepo blocks Get after reading so a concurrent persist can overtake it.
type gatedRepo struct {
	store.ProgressRepository
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) Get(ctx context.Context, uid, cid string) (domain.LessonProgress, bool, error) {
	p, ok, err := r.ProgressRepository.Get(ctx, uid, cid)
	close(r.entered)
	<-r.release
	return p, ok, err
}

func TestLoad_LateResponseDoesNotOverwriteNewerPersist(t *testing.T) {
	inner := store.NewInMemoryProgressRepository()
	seed, _ := domain.NewProgress("u1", "l1", 30, 100, t0.Add(-time.Hour))
	if _, err := inner.Upsert(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	repo := &gatedRepo{ProgressRepository: inner, entered: make(chan struct{}), release: make(chan struct{})}
	tr := newTracker(repo, "u1")

	loaded := make(chan int, 1)
	go func() { loaded <- tr.Load(context.Background(), "l1") }()
	<-repo.entered

	if _, err := tr.Persist(context.Background(), "l1", 80, 100); err != nil {
		t.Fatalf("persist: %v", err)
	}
	close(repo.release)

	if pos := <-loaded; pos != 80 {
		t.Fatalf("Load = %d, want the newer 80", pos)
	}
	if cached, _ := tr.Snapshot("l1"); cached.LastPositionSeconds != 80 {
		t.Fatalf("cache regressed to %d", cached.LastPositionSeconds)
	}
}

func TestPersist_FutureStoredKeyDoesNotFreezeRow(t *testing.T) {
	repo := store.NewInMemoryProgressRepository()
	ctx := context.Background()
	now := time.Now()

	ahead, err := domain.NewProgress("u1", "l1", 10, 100, now)
	if err != nil {
		t.Fatalf("NewProgress: %v", err)
	}
	ahead.ClientTsMs = now.Add(time.Hour).UnixMilli()
	if _, err := repo.Upsert(ctx, ahead); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tr := New(repo, "u1", zap.NewNop(), Options{Timeout: time.Second})
	got, err := tr.Persist(ctx, "l1", 95, 100)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if got.LastPositionSeconds != 95 {
		t.Fatalf("persist returned position %d, want 95", got.LastPositionSeconds)
	}
	if pos := tr.Load(ctx, "l1"); pos != 95 {
		t.Fatalf("load returned %d, want 95", pos)
	}
}

func TestPersist_SupersededWriteIsLogged(t *testing.T) {
	repo := store.NewInMemoryProgressRepository()
	ctx := context.Background()

	newer, _ := domain.NewProgress("u1", "l1", 80, 100, t0.Add(3*time.Second))
	if _, err := repo.Upsert(ctx, newer); err != nil {
		t.Fatalf("seed: %v", err)
	}

	core, logs := observer.New(zap.WarnLevel)
	tr := New(repo, "u1", zap.New(core), Options{Timeout: time.Second, Now: fixedNow(t0)})
	got, err := tr.Persist(ctx, "l1", 20, 100)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if got.LastPositionSeconds != 80 {
		t.Fatalf("expected the newer stored row, got position %d", got.LastPositionSeconds)
	}
	entries := logs.FilterMessage("persist superseded by newer stored row").All()
	if len(entries) != 1 {
		t.Fatalf("expected one superseded warning, got %d", len(entries))
	}
	if pos := entries[0].ContextMap()["stored_position"]; pos != int64(80) {
		t.Fatalf("stored_position = %v", pos)
	}
}
