// Package session keeps the server-side state of a playback screen: the
// module's lessons, the selected lesson, the player controller and the
// user's progress cache.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/analytics"
	"github.com/example/learning-platform/internal/platform/signing"
	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/navigator"
	"github.com/example/learning-platform/services/progress/internal/playback"
	"github.com/example/learning-platform/services/progress/internal/tracker"
)

var ErrUnknownLesson = errors.New("lesson is not part of this module")

// Event is a player event reported by the client together with the
// position it was observed at.
type Event struct {
	Type        playback.EventType
	CurrentTime float64
	Duration    float64
}

// LessonView is a lesson as shown in a session, with its progress if any.
type LessonView struct {
	domain.Lesson
	Progress *domain.Summary `json:"progress,omitempty"`
}

// View is the client-facing state of a session.
type View struct {
	SessionID   string                 `json:"session_id"`
	ModuleID    string                 `json:"module_id"`
	State       string                 `json:"state"`
	Error       string                 `json:"error,omitempty"`
	Lesson      *domain.Lesson         `json:"lesson,omitempty"`
	Index       int                    `json:"index"`
	HasNext     bool                   `json:"has_next"`
	HasPrevious bool                   `json:"has_previous"`
	SeekTo      *float64               `json:"seek_to,omitempty"`
	Saved       *domain.LessonProgress `json:"saved,omitempty"`
	Lessons     []LessonView           `json:"lessons,omitempty"`
}

type Session struct {
	ID        string
	UserID    string
	ModuleID  string
	CreatedAt time.Time

	log       *zap.Logger
	signer    *signing.Signer
	analytics *analytics.Publisher

	mu        sync.Mutex
	nav       *navigator.Navigator
	tracker   *tracker.Tracker
	ctrl      *playback.Controller
	player    *playback.RemotePlayer
	lastSeen  time.Time
	started   map[string]bool
	completed map[string]bool
}

// Select switches to lessonID. Unknown ids keep the current lesson and
// return ErrUnknownLesson.
func (s *Session) Select(lessonID string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.nav.Select(lessonID) {
		return s.viewLocked(), ErrUnknownLesson
	}
	s.loadCurrentLocked()
	return s.viewLocked(), nil
}

// Next advances to the following lesson; moved is false at the end.
func (s *Session) Next() (v View, moved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if moved = s.nav.Next(); moved {
		s.loadCurrentLocked()
	}
	return s.viewLocked(), moved
}

// Previous moves to the preceding lesson; moved is false at the start.
func (s *Session) Previous() (v View, moved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if moved = s.nav.Previous(); moved {
		s.loadCurrentLocked()
	}
	return s.viewLocked(), moved
}

// Event applies a client player event and returns the resulting view,
// including any seek the client must perform.
func (s *Session) Event(ctx context.Context, ev Event) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return s.viewLocked(), playback.ErrDetached
	}
	s.player.Report(ev.CurrentTime, ev.Duration)
	if err := s.player.Dispatch(ctx, ev.Type); err != nil {
		return s.viewLocked(), err
	}
	s.track()

	v := s.viewLocked()
	if at, ok := s.player.TakeSeek(); ok {
		v.SeekTo = &at
	}
	return v, nil
}

// Snapshot returns the view with every lesson's progress attached.
func (s *Session) Snapshot(ctx context.Context) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.viewLocked()
	lessons := s.nav.Lessons()
	ids := make([]string, len(lessons))
	for i, l := range lessons {
		ids[i] = l.ID
	}
	progress := s.tracker.LoadAll(ctx, ids)
	v.Lessons = make([]LessonView, len(lessons))
	for i, l := range lessons {
		l.VideoURL = ""
		v.Lessons[i] = LessonView{Lesson: l}
		if p, ok := progress[l.ID]; ok {
			v.Lessons[i].Progress = &p
		}
	}
	return v
}

// Close tears down the player.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Close()
	s.player = nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// newPlayer is the controller's player factory: a remote player playing a
// URL signed for this session's user.
func (s *Session) newPlayer(l domain.Lesson) (playback.Player, error) {
	src, err := s.signer.SignURL(l.VideoURL, s.UserID)
	if err != nil {
		return nil, err
	}
	p := playback.NewRemotePlayer(src)
	s.player = p
	return p, nil
}

func (s *Session) loadCurrentLocked() {
	s.player = nil
	l, ok := s.nav.Current()
	if !ok {
		s.ctrl.Close()
		return
	}
	if err := s.ctrl.Load(l); err != nil && !errors.Is(err, playback.ErrNoMedia) {
		s.log.Warn("load lesson failed", zap.String("lesson_id", l.ID), zap.Error(err))
	}
}

func (s *Session) onLoadFailure(l domain.Lesson, err error) {
	s.analytics.Publish(analytics.SubjectPlaybackLoadFailed, "playback_load_failed", s.UserID, map[string]any{
		"lesson_id": l.ID,
		"module_id": l.ModuleID,
		"reason":    err.Error(),
	})
}

// track publishes started/completed events once per lesson per session.
func (s *Session) track() {
	l := s.ctrl.Lesson()
	if s.ctrl.State() == playback.Playing && !s.started[l.ID] {
		s.started[l.ID] = true
		s.analytics.Publish(analytics.SubjectLessonStarted, "lesson_started", s.UserID, map[string]any{
			"lesson_id": l.ID,
			"module_id": l.ModuleID,
		})
	}
	if saved, ok := s.ctrl.LastSaved(); ok && saved.IsCompleted && !s.completed[l.ID] {
		s.completed[l.ID] = true
		s.analytics.Publish(analytics.SubjectLessonCompleted, "lesson_completed", s.UserID, map[string]any{
			"lesson_id":  l.ID,
			"module_id":  l.ModuleID,
			"percentage": saved.CompletionPercentage,
		})
	}
}

func (s *Session) viewLocked() View {
	v := View{
		SessionID:   s.ID,
		ModuleID:    s.ModuleID,
		State:       s.ctrl.State().String(),
		Index:       s.nav.Index(),
		HasNext:     s.nav.HasNext(),
		HasPrevious: s.nav.HasPrevious(),
	}
	if err := s.ctrl.Err(); err != nil {
		v.Error = err.Error()
	}
	if l, ok := s.nav.Current(); ok {
		if s.player != nil {
			l.VideoURL = s.player.Source()
		} else {
			l.VideoURL = ""
		}
		v.Lesson = &l
	}
	if saved, ok := s.ctrl.LastSaved(); ok {
		v.Saved = &saved
	}
	return v
}
