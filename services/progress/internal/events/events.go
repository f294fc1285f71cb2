// Package events defines the progress write events exchanged between the
// HTTP API and the persist worker over NATS JetStream.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

const (
	Stream         = "PROGRESS"
	SubjectPersist = "progress.persist"
	SubjectDLQ     = "progress.persist.dlq"
	Durable        = "progress_persist"
)

var ErrInvalidEvent = errors.New("invalid progress event")

// Persist asks the worker to record a playback sample.
type Persist struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	ContentID   string    `json:"content_id"`
	CurrentTime float64   `json:"current_time"`
	Duration    float64   `json:"duration"`
	ClientTsMs  int64     `json:"client_ts_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

func Decode(data []byte) (Persist, error) {
	var ev Persist
	if err := json.Unmarshal(data, &ev); err != nil {
		return Persist{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.EventID == "" || ev.UserID == "" || ev.ContentID == "" {
		return Persist{}, fmt.Errorf("%w: event_id, user_id and content_id are required", ErrInvalidEvent)
	}
	return ev, nil
}

// Progress builds the row the event describes. It is ordered by the event
// time, or by the client timestamp when that lies just before it.
func (ev Persist) Progress() (domain.LessonProgress, error) {
	at := ev.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	p, err := domain.NewProgress(ev.UserID, ev.ContentID, ev.CurrentTime, ev.Duration, at)
	if err != nil {
		return domain.LessonProgress{}, err
	}
	p.ClientTsMs = domain.OrderingTs(ev.ClientTsMs, at)
	return p, nil
}
