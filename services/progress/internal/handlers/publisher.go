package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/learning-platform/services/progress/internal/events"
)

var ErrAsyncPublishDisabled = errors.New("async publish is disabled")

// EventPublisher hands progress writes to the persist worker.
type EventPublisher struct {
	js          nats.JetStreamContext
	asyncWrites bool
}

func NewEventPublisher(js nats.JetStreamContext, asyncWrites bool) *EventPublisher {
	return &EventPublisher{js: js, asyncWrites: asyncWrites}
}

func (p *EventPublisher) Enabled() bool {
	return p != nil && p.js != nil && p.asyncWrites
}

// PublishPersist assigns an event id, publishes ev and returns the id.
func (p *EventPublisher) PublishPersist(ev events.Persist) (string, error) {
	if !p.Enabled() {
		return "", ErrAsyncPublishDisabled
	}
	ev.EventID = uuid.NewString()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	if _, err := p.js.Publish(events.SubjectPersist, body, nats.MsgId(ev.EventID)); err != nil {
		return "", err
	}
	return ev.EventID, nil
}
