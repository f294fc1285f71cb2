package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/signing"
	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/playback"
	"github.com/example/learning-platform/services/progress/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	manager  *Manager
	progress *store.InMemoryProgressRepository
	signer   *signing.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lessons := store.NewInMemoryLessonRepository(
		domain.Lesson{ID: "l1", ModuleID: "m1", Title: "Intro", VideoURL: "https://cdn.example.com/l1.mp4", Position: 1},
		domain.Lesson{ID: "l2", ModuleID: "m1", Title: "Reading", Position: 2},
		domain.Lesson{ID: "l3", ModuleID: "m1", Title: "Practice", VideoURL: "https://cdn.example.com/l3.mp4", Position: 3},
	)
	f := &fixture{
		progress: store.NewInMemoryProgressRepository(),
		signer:   signing.New("media-secret", time.Hour),
	}
	f.manager = NewManager(Deps{
		Progress: f.progress,
		Lessons:  lessons,
		Signer:   f.signer,
		Log:      zap.NewNop(),
	}, Config{Playback: playback.DefaultConfig()})
	t.Cleanup(f.manager.closeAll)
	return f
}

func event(typ playback.EventType, cur, dur float64) Event {
	return Event{Type: typ, CurrentTime: cur, Duration: dur}
}

func TestSession_ResumeAndCompleteFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed, err := domain.NewProgress("u1", "l1", 42, 300, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = f.progress.Upsert(ctx, seed)
	require.NoError(t, err)

	s, err := f.manager.Create(ctx, "u1", "m1", "")
	require.NoError(t, err)

	v := s.Snapshot(ctx)
	require.Equal(t, "loading", v.State)
	require.NotNil(t, v.Lesson)
	require.Equal(t, "l1", v.Lesson.ID)
	uid, err := f.signer.VerifyURL(v.Lesson.VideoURL)
	require.NoError(t, err)
	require.Equal(t, "u1", uid)
	require.Len(t, v.Lessons, 3)
	require.Equal(t, &domain.Summary{Percentage: 14}, v.Lessons[0].Progress)
	require.Nil(t, v.Lessons[1].Progress)

	v, err = s.Event(ctx, event(playback.EventReady, 0, 300))
	require.NoError(t, err)
	require.Equal(t, "ready", v.State)
	require.NotNil(t, v.SeekTo)
	require.Equal(t, 42.0, *v.SeekTo)

	_, err = s.Event(ctx, event(playback.EventPlay, 42, 300))
	require.NoError(t, err)
	v, err = s.Event(ctx, event(playback.EventTimeUpdate, 45.1, 300))
	require.NoError(t, err)
	require.NotNil(t, v.Saved)
	require.Equal(t, 45, v.Saved.LastPositionSeconds)

	v, err = s.Event(ctx, event(playback.EventEnded, 299.8, 300))
	require.NoError(t, err)
	require.Equal(t, "ended", v.State)
	require.Equal(t, 100, v.Saved.CompletionPercentage)
	require.True(t, v.Saved.IsCompleted)

	row, ok, err := f.progress.Get(ctx, "u1", "l1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 300, row.LastPositionSeconds)
	require.NotNil(t, row.CompletedAt)
}

func TestSession_Navigation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.manager.Create(ctx, "u1", "m1", "l3")
	require.NoError(t, err)

	v, moved := s.Next()
	require.False(t, moved)
	require.Equal(t, "l3", v.Lesson.ID)

	v, moved = s.Previous()
	require.True(t, moved)
	require.Equal(t, "l2", v.Lesson.ID)
	require.Equal(t, "idle", v.State)
	require.Equal(t, playback.ErrNoMedia.Error(), v.Error)
	require.Empty(t, v.Lesson.VideoURL)

	_, err = s.Event(ctx, event(playback.EventReady, 0, 10))
	require.ErrorIs(t, err, playback.ErrDetached)

	v, err = s.Select("nope")
	require.ErrorIs(t, err, ErrUnknownLesson)
	require.Equal(t, "l2", v.Lesson.ID)

	v, err = s.Select("l1")
	require.NoError(t, err)
	require.Equal(t, "loading", v.State)
	require.False(t, v.HasPrevious)
	require.True(t, v.HasNext)
}

func TestSession_PauseBeforeReadyIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.manager.Create(ctx, "u1", "m1", "l1")
	require.NoError(t, err)
	_, err = s.Event(ctx, event(playback.EventReady, 0, 100))
	require.NoError(t, err)

	_, err = s.Select("l3")
	require.NoError(t, err)
	v, err := s.Event(ctx, event(playback.EventPause, 50, 100))
	require.NoError(t, err)
	require.Equal(t, "loading", v.State, "pause before ready is ignored")

	_, ok, _ := f.progress.Get(ctx, "u1", "l1")
	require.False(t, ok)
}

func TestSession_UnknownEvent(t *testing.T) {
	f := newFixture(t)
	s, err := f.manager.Create(context.Background(), "u1", "m1", "")
	require.NoError(t, err)
	_, err = s.Event(context.Background(), event("seek", 1, 1))
	require.ErrorIs(t, err, playback.ErrUnknownEvent)
}

func TestManager_CreateErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Create(context.Background(), "", "m1", "")
	require.ErrorIs(t, err, ErrMissingUserID)
	_, err = f.manager.Create(context.Background(), "u1", "empty", "")
	require.ErrorIs(t, err, ErrEmptyModule)
}

func TestManager_OwnershipAndDelete(t *testing.T) {
	f := newFixture(t)
	s, err := f.manager.Create(context.Background(), "u1", "m1", "")
	require.NoError(t, err)

	_, err = f.manager.Get(s.ID, "u2")
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, f.manager.Delete(s.ID, "u2"), ErrForbidden)

	got, err := f.manager.Get(s.ID, "u1")
	require.NoError(t, err)
	require.Same(t, s, got)

	require.NoError(t, f.manager.Delete(s.ID, "u1"))
	require.Equal(t, 0, f.manager.Len())
	_, err = f.manager.Get(s.ID, "u1")
	require.True(t, errors.Is(err, ErrNotFound))
	require.ErrorIs(t, f.manager.Delete(s.ID, "u1"), ErrNotFound)
}

func TestManager_SweepEvictsIdle(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f.manager.now = func() time.Time { return now }

	idle, err := f.manager.Create(context.Background(), "u1", "m1", "")
	require.NoError(t, err)
	now = now.Add(20 * time.Minute)
	active, err := f.manager.Create(context.Background(), "u2", "m1", "")
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	require.Equal(t, 1, f.manager.Sweep())
	_, err = f.manager.Get(idle.ID, "u1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.manager.Get(active.ID, "u2")
	require.NoError(t, err)
}

func TestManager_RunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.SweepInterval = 5 * time.Millisecond
	_, err := f.manager.Create(context.Background(), "u1", "m1", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.manager.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.Equal(t, 0, f.manager.Len())
}
