package analytics

import (
	"testing"
	"time"
)

func TestPublish_NilReceiverIsNoop(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectLessonStarted, "lesson_started", "user-1", nil)
}

func TestPublish_NoJetStreamIsNoop(t *testing.T) {
	p := New(nil, nil)
	p.Publish(SubjectLessonCompleted, "lesson_completed", "user-1", map[string]any{"lesson_id": "l1"})
}

func TestEnvelope(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	p := New(nil, nil)
	p.now = func() time.Time { return fixed }

	ev := p.Envelope("lesson_rated", "user-9", map[string]any{"rating": 4})
	if ev.EventID == "" {
		t.Fatal("expected event id")
	}
	if !ev.OccurredAt.Equal(fixed) || ev.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", ev.OccurredAt)
	}
	if ev.UserID != "user-9" || ev.Properties["rating"] != 4 {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
}
