// Package playback bridges a media player's event stream and the progress
// store. The Controller decides when playback position is saved and when a
// saved position is restored.
package playback

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/metrics"
)

type State int

const (
	Idle State = iota
	Loading
	Ready
	Playing
	Paused
	Ended
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrNoMedia      = errors.New("lesson has no video")
	ErrReadyTimeout = errors.New("player did not become ready in time")
)

// Listener receives player events. The controller hands each player a
// listener bound to that player's lifetime.
type Listener interface {
	Ready(ctx context.Context)
	Play(ctx context.Context)
	TimeUpdate(ctx context.Context, seconds float64)
	Pause(ctx context.Context)
	Ended(ctx context.Context)
}

// Player is the control surface of a media player instance.
type Player interface {
	Attach(l Listener)
	// Detach removes the listener; later events from this player are dropped.
	Detach()
	Seek(ctx context.Context, seconds float64) error
	CurrentTime() float64
	Duration() float64
}

// PlayerFactory creates a player for the lesson's media source.
type PlayerFactory func(lesson domain.Lesson) (Player, error)

// ProgressStore is the subset of the session progress store the controller uses.
type ProgressStore interface {
	Load(ctx context.Context, contentID string) int
	Persist(ctx context.Context, contentID string, current, duration float64) (domain.LessonProgress, error)
}

type Config struct {
	// SaveInterval is the playback distance between sampled saves.
	SaveInterval time.Duration
	// ReadyTimeout moves a loading player to Failed.
	ReadyTimeout time.Duration
	// OnLoadFailure, if set, is called when a load fails or times out.
	OnLoadFailure func(lesson domain.Lesson, err error)
}

func DefaultConfig() Config {
	return Config{
		SaveInterval: 5 * time.Second,
		ReadyTimeout: 15 * time.Second,
	}
}

type Controller struct {
	store     ProgressStore
	newPlayer PlayerFactory
	cfg       Config
	log       *zap.Logger

	mu         sync.Mutex
	state      State
	lesson     domain.Lesson
	player     Player
	gen        uint64
	readyTimer *time.Timer
	lastBucket int64
	err        error
	lastSaved  *domain.LessonProgress
}

func NewController(store ProgressStore, factory PlayerFactory, log *zap.Logger, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = def.SaveInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store:     store,
		newPlayer: factory,
		cfg:       cfg,
		log:       log.With(zap.String("component", "playback")),
	}
}

// Load tears down the current player and starts loading lesson.
func (c *Controller) Load(lesson domain.Lesson) error {
	c.mu.Lock()
	c.teardownLocked()
	c.lesson = lesson
	c.lastSaved = nil
	c.err = nil

	if lesson.VideoURL == "" {
		c.setStateLocked(Idle)
		c.err = ErrNoMedia
		c.mu.Unlock()
		return ErrNoMedia
	}
	p, err := c.newPlayer(lesson)
	if err != nil {
		c.setStateLocked(Failed)
		c.err = err
		c.mu.Unlock()
		c.loadFailed(lesson, err)
		return err
	}
	c.player = p
	gen := c.gen
	c.setStateLocked(Loading)
	c.readyTimer = time.AfterFunc(c.cfg.ReadyTimeout, func() { c.readyTimedOut(gen) })
	c.mu.Unlock()

	p.Attach(binding{c: c, gen: gen})
	return nil
}

// Close detaches the current player and returns to Idle.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.setStateLocked(Idle)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the reason for an Idle or Failed state, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) Lesson() domain.Lesson {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lesson
}

// LastSaved is the most recent row persisted for the current lesson.
func (c *Controller) LastSaved() (domain.LessonProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSaved == nil {
		return domain.LessonProgress{}, false
	}
	return *c.lastSaved, true
}

func (c *Controller) onReady(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Loading {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.setStateLocked(Ready)
	lessonID, p := c.lesson.ID, c.player
	c.mu.Unlock()

	pos := c.store.Load(ctx, lessonID)
	if pos <= 0 {
		return
	}
	if !c.current(gen) {
		return
	}
	if err := p.Seek(ctx, float64(pos)); err != nil {
		c.log.Warn("resume seek failed",
			zap.String("lesson_id", lessonID),
			zap.Int("position", pos),
			zap.Error(err))
	}
}

func (c *Controller) onPlay(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	switch c.state {
	case Ready, Paused, Ended:
		c.setStateLocked(Playing)
	}
}

func (c *Controller) onTimeUpdate(ctx context.Context, gen uint64, seconds float64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Playing || !c.dueLocked(seconds) {
		c.mu.Unlock()
		return
	}
	p := c.player
	c.mu.Unlock()

	c.persist(ctx, gen, seconds, p.Duration())
}

func (c *Controller) onPause(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Playing {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(Paused)
	p := c.player
	c.mu.Unlock()

	c.persist(ctx, gen, p.CurrentTime(), p.Duration())
}

func (c *Controller) onEnded(ctx context.Context, gen uint64) {
	c.mu.Lock()
	switch {
	case gen != c.gen:
		c.mu.Unlock()
		return
	case c.state != Ready && c.state != Playing && c.state != Paused:
		c.mu.Unlock()
		return
	}
	c.setStateLocked(Ended)
	p := c.player
	c.mu.Unlock()

	d := p.Duration()
	c.persist(ctx, gen, d, d)
}

// dueLocked reports whether seconds is the first sample in a save interval
// bucket other than the last one sampled. Bucket zero never fires, so the
// update rate and its phase do not affect how often saves happen.
func (c *Controller) dueLocked(seconds float64) bool {
	interval := c.cfg.SaveInterval.Seconds()
	if seconds < interval || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return false
	}
	bucket := int64(seconds / interval)
	if bucket == c.lastBucket {
		return false
	}
	c.lastBucket = bucket
	return true
}

func (c *Controller) persist(ctx context.Context, gen uint64, current, duration float64) {
	c.mu.Lock()
	lessonID := c.lesson.ID
	c.mu.Unlock()

	p, err := c.store.Persist(ctx, lessonID, current, duration)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.lastSaved = &p
	}
}

func (c *Controller) readyTimedOut(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Loading {
		c.mu.Unlock()
		return
	}
	lesson := c.lesson
	c.teardownLocked()
	c.setStateLocked(Failed)
	c.err = ErrReadyTimeout
	c.mu.Unlock()

	c.log.Warn("player ready timeout", zap.String("lesson_id", lesson.ID), zap.Duration("timeout", c.cfg.ReadyTimeout))
	c.loadFailed(lesson, ErrReadyTimeout)
}

func (c *Controller) loadFailed(lesson domain.Lesson, err error) {
	metrics.IncLoadFailure("player")
	if c.cfg.OnLoadFailure != nil {
		c.cfg.OnLoadFailure(lesson, err)
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// teardownLocked detaches the player and invalidates its listener binding.
func (c *Controller) teardownLocked() {
	c.stopTimerLocked()
	if c.player != nil {
		c.player.Detach()
		c.player = nil
	}
	c.gen++
	c.lastBucket = 0
}

func (c *Controller) stopTimerLocked() {
	if c.readyTimer != nil {
		c.readyTimer.Stop()
		c.readyTimer = nil
	}
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	metrics.IncTransition(s.String())
}

// binding ties a listener to one player generation.
type binding struct {
	c   *Controller
	gen uint64
}

func (b binding) Ready(ctx context.Context)                 { b.c.onReady(ctx, b.gen) }
func (b binding) Play(context.Context)                      { b.c.onPlay(b.gen) }
func (b binding) TimeUpdate(ctx context.Context, s float64) { b.c.onTimeUpdate(ctx, b.gen, s) }
func (b binding) Pause(ctx context.Context)                 { b.c.onPause(ctx, b.gen) }
func (b binding) Ended(ctx context.Context)                 { b.c.onEnded(ctx, b.gen) }
