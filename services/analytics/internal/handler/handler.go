// Package handler routes analytics.* messages to a Sink.
package handler

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/analytics"
)

// Sink receives decoded events.
type Sink interface {
	Capture(ev Captured)
}

// Captured is an analytics event after routing.
type Captured struct {
	DistinctID string
	Event      string
	OccurredAt time.Time
	LessonID   string
	ModuleID   string
	// Value carries the event's numeric payload: rating, completion
	// percentage or recipient count.
	Value float64
	Props map[string]any
}

// Dispatcher routes incoming messages to the sink by subject.
type Dispatcher struct {
	sink Sink
	log  *zap.Logger
}

func New(sink Sink, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sink: sink, log: log}
}

// Dispatch returns false for unknown subjects and undecodable payloads;
// the caller acks either way so they are not replayed.
func (d *Dispatcher) Dispatch(subject string, data []byte) bool {
	var ev analytics.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		d.log.Error("analytics: unmarshal message", zap.String("subject", subject), zap.Error(err))
		return false
	}
	c := Captured{
		DistinctID: ev.UserID,
		Event:      ev.EventName,
		OccurredAt: ev.OccurredAt,
		LessonID:   str(ev.Properties, "lesson_id"),
		ModuleID:   str(ev.Properties, "module_id"),
		Props:      ev.Properties,
	}
	if c.DistinctID == "" {
		c.DistinctID = "anonymous"
	}

	switch subject {
	case analytics.SubjectLessonStarted:
		c.Event = "lesson_started"
	case analytics.SubjectLessonCompleted:
		c.Event = "lesson_completed"
		c.Value = num(ev.Properties, "percentage")
	case analytics.SubjectLessonRated:
		c.Event = "lesson_rated"
		c.Value = num(ev.Properties, "rating")
	case analytics.SubjectNotificationSent:
		c.Event = "notification_broadcast"
		c.Value = num(ev.Properties, "recipients")
	case analytics.SubjectPlaybackLoadFailed:
		c.Event = "playback_load_failed"
	default:
		d.log.Debug("analytics: unhandled subject", zap.String("subject", subject))
		return false
	}
	d.sink.Capture(c)
	return true
}

func str(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// num reads a JSON number; encoding/json decodes them as float64.
func num(props map[string]any, key string) float64 {
	f, _ := props[key].(float64)
	return f
}
