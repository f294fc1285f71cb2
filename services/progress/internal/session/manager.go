package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/analytics"
	"github.com/example/learning-platform/internal/platform/signing"
	"github.com/example/learning-platform/services/progress/internal/metrics"
	"github.com/example/learning-platform/services/progress/internal/navigator"
	"github.com/example/learning-platform/services/progress/internal/playback"
	"github.com/example/learning-platform/services/progress/internal/store"
	"github.com/example/learning-platform/services/progress/internal/tracker"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrForbidden     = errors.New("session belongs to another user")
	ErrEmptyModule   = errors.New("module has no lessons")
	ErrMissingUserID = errors.New("user id is required")
)

type Config struct {
	// IdleTTL evicts sessions without activity for this long.
	IdleTTL time.Duration
	// SweepInterval is how often Run looks for idle sessions.
	SweepInterval  time.Duration
	TrackerTimeout time.Duration
	Playback       playback.Config
}

type Deps struct {
	Progress  store.ProgressRepository
	Lessons   store.LessonRepository
	Signer    *signing.Signer
	Analytics *analytics.Publisher
	Log       *zap.Logger
}

// Manager owns the in-memory sessions of this instance.
type Manager struct {
	deps Deps
	cfg  Config
	log  *zap.Logger
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps, cfg Config) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		deps:     deps,
		cfg:      cfg,
		log:      log.With(zap.String("component", "sessions")),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session on moduleID with lessonID selected (or the first
// lesson) and starts loading it.
func (m *Manager) Create(ctx context.Context, userID, moduleID, lessonID string) (*Session, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	lessons, err := m.deps.Lessons.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if len(lessons) == 0 {
		return nil, ErrEmptyModule
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ModuleID:  moduleID,
		CreatedAt: now,
		signer:    m.deps.Signer,
		analytics: m.deps.Analytics,
		nav:       navigator.New(lessons, lessonID),
		lastSeen:  now,
		started:   make(map[string]bool),
		completed: make(map[string]bool),
	}
	s.log = m.log.With(zap.String("session_id", s.ID), zap.String("user_id", userID))
	s.tracker = tracker.New(m.deps.Progress, userID, m.log, tracker.Options{Timeout: m.cfg.TrackerTimeout})

	pcfg := m.cfg.Playback
	pcfg.OnLoadFailure = s.onLoadFailure
	s.ctrl = playback.NewController(s.tracker, s.newPlayer, s.log, pcfg)

	s.mu.Lock()
	s.loadCurrentLocked()
	s.mu.Unlock()

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetActiveSessions(n)

	m.log.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("user_id", userID),
		zap.String("module_id", moduleID))
	return s, nil
}

// Get returns the session if it belongs to userID and marks it active.
func (m *Manager) Get(id, userID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.UserID != userID {
		return nil, ErrForbidden
	}
	s.touch(m.now())
	return s, nil
}

func (m *Manager) Delete(id, userID string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.UserID != userID {
		m.mu.Unlock()
		return ErrForbidden
	}
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	metrics.SetActiveSessions(n)
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than IdleTTL and returns how many
// were evicted.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTTL)
	var idle []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		metrics.SetActiveSessions(n)
		m.log.Info("idle sessions evicted", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done, then closes the rest.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	metrics.SetActiveSessions(0)
}
