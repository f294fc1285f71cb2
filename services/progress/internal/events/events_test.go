package events

import (
	"errors"
	"testing"
	"time"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

func TestDecode_RequiresIdentifiers(t *testing.T) {
	cases := map[string]string{
		"not json":   `{`,
		"no event":   `{"user_id":"u1","content_id":"l1"}`,
		"no user":    `{"event_id":"e1","content_id":"l1"}`,
		"no content": `{"event_id":"e1","user_id":"u1"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(raw)); !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestProgress_UsesClientTimestamp(t *testing.T) {
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	ev := Persist{EventID: "e1", UserID: "u1", ContentID: "l1", CurrentTime: 90, Duration: 100, CreatedAt: at}

	p, err := ev.Progress()
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.ClientTsMs != at.UnixMilli() || !p.IsCompleted {
		t.Fatalf("unexpected row: %+v", p)
	}

	ev.ClientTsMs = at.UnixMilli() - 1200
	p, _ = ev.Progress()
	if p.ClientTsMs != ev.ClientTsMs {
		t.Fatalf("client_ts_ms = %d, want %d", p.ClientTsMs, ev.ClientTsMs)
	}

	ev.ClientTsMs = at.Add(time.Hour).UnixMilli()
	p, _ = ev.Progress()
	if p.ClientTsMs != at.UnixMilli() {
		t.Fatalf("future client_ts_ms must fall back to event time, got %d", p.ClientTsMs)
	}
}

func TestProgress_ZeroDuration(t *testing.T) {
	ev := Persist{EventID: "e1", UserID: "u1", ContentID: "l1", CurrentTime: 5}
	if _, err := ev.Progress(); !errors.Is(err, domain.ErrDurationUnknown) {
		t.Fatalf("expected ErrDurationUnknown, got %v", err)
	}
}
