package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventType names a player event reported by a client.
type EventType string

const (
	EventReady      EventType = "ready"
	EventPlay       EventType = "play"
	EventTimeUpdate EventType = "timeupdate"
	EventPause      EventType = "pause"
	EventEnded      EventType = "ended"
)

var (
	ErrDetached     = errors.New("player detached")
	ErrUnknownEvent = errors.New("unknown player event")
)

// RemotePlayer is a Player whose media runs on a client device. The client
// reports its position and events; seeks are queued for the client to apply.
type RemotePlayer struct {
	mu       sync.Mutex
	src      string
	listener Listener
	current  float64
	duration float64
	seek     *float64
}

func NewRemotePlayer(src string) *RemotePlayer {
	return &RemotePlayer{src: src}
}

// Source is the media URL the client should play.
func (p *RemotePlayer) Source() string { return p.src }

func (p *RemotePlayer) Attach(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

func (p *RemotePlayer) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = nil
	p.seek = nil
}

func (p *RemotePlayer) Seek(_ context.Context, seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ErrDetached
	}
	if seconds < 0 {
		return fmt.Errorf("seek to %v: negative position", seconds)
	}
	p.seek = &seconds
	p.current = seconds
	return nil
}

func (p *RemotePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *RemotePlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Report records the client's position. Non-positive durations keep the
// last known one.
func (p *RemotePlayer) Report(current, duration float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current >= 0 {
		p.current = current
	}
	if duration > 0 {
		p.duration = duration
	}
}

// TakeSeek returns and clears the pending seek.
func (p *RemotePlayer) TakeSeek() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seek == nil {
		return 0, false
	}
	s := *p.seek
	p.seek = nil
	return s, true
}

// Dispatch delivers a client event to the attached listener.
func (p *RemotePlayer) Dispatch(ctx context.Context, ev EventType) error {
	p.mu.Lock()
	l, cur := p.listener, p.current
	p.mu.Unlock()
	if l == nil {
		return ErrDetached
	}
	switch ev {
	case EventReady:
		l.Ready(ctx)
	case EventPlay:
		l.Play(ctx)
	case EventTimeUpdate:
		l.TimeUpdate(ctx, cur)
	case EventPause:
		l.Pause(ctx)
	case EventEnded:
		l.Ended(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}
	return nil
}
