// Package worker applies queued progress writes from JetStream.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/natsconn"
	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/events"
	"github.com/example/learning-platform/services/progress/internal/idempotency"
	"github.com/example/learning-platform/services/progress/internal/metrics"
	"github.com/example/learning-platform/services/progress/internal/store"
)

// message is the part of a JetStream message the handler needs.
type message interface {
	Data() []byte
	NumDelivered() uint64
	Ack() error
	NakWithDelay(d time.Duration) error
}

type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type Options struct {
	MaxDeliver int
	BatchSize  int
	FetchWait  time.Duration
	Backoff    Backoff
}

type Worker struct {
	log      *zap.Logger
	js       nats.JetStreamContext
	dlq      publisher
	progress store.ProgressRepository
	idem     idempotency.Store
	opts     Options
}

func New(log *zap.Logger, js nats.JetStreamContext, progress store.ProgressRepository, idem idempotency.Store, opts Options) *Worker {
	if opts.MaxDeliver <= 0 {
		opts.MaxDeliver = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FetchWait <= 0 {
		opts.FetchWait = 2 * time.Second
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = defaultBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{
		log:      log.With(zap.String("component", "persist_worker")),
		js:       js,
		progress: progress,
		idem:     idem,
		opts:     opts,
	}
	if js != nil {
		w.dlq = js
	}
	return w
}

// Run consumes events.SubjectPersist until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := natsconn.EnsureStream(w.js, natsconn.StreamSpec{
		Name:     events.Stream,
		Subjects: []string{"progress.>"},
	}); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}
	sub, err := w.js.PullSubscribe(events.SubjectPersist, events.Durable, nats.ManualAck())
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	w.log.Info("consumer started", zap.String("subject", events.SubjectPersist), zap.String("durable", events.Durable))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(w.opts.BatchSize, nats.MaxWait(w.opts.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.Warn("fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			w.handle(ctx, natsMsg{m})
		}
	}
}

func (w *Worker) handle(ctx context.Context, m message) {
	attempt := m.NumDelivered()
	if attempt > uint64(w.opts.MaxDeliver) {
		w.deadLetter(m, fmt.Sprintf("max deliveries exceeded: %d", attempt))
		return
	}

	ev, err := events.Decode(m.Data())
	if err != nil {
		w.log.Warn("bad payload", zap.Error(err))
		w.deadLetter(m, err.Error())
		return
	}
	log := w.log.With(zap.String("event_id", ev.EventID), zap.String("content_id", ev.ContentID), zap.Uint64("attempt", attempt))

	p, err := ev.Progress()
	if err != nil {
		if errors.Is(err, domain.ErrDurationUnknown) {
			metrics.IncWorker("skipped")
			_ = m.Ack()
			return
		}
		w.deadLetter(m, err.Error())
		return
	}

	dup, err := w.idem.Check(ctx, ev.EventID)
	if err != nil {
		log.Warn("idempotency check failed", zap.Error(err))
		w.retry(m, attempt)
		return
	}
	if dup {
		metrics.IncWorker("duplicate")
		_ = m.Ack()
		return
	}

	if _, err := w.progress.Upsert(ctx, p); err != nil {
		log.Warn("apply progress failed", zap.Error(err))
		if ferr := w.idem.Forget(ctx, ev.EventID); ferr != nil {
			log.Warn("idempotency release failed", zap.Error(ferr))
		}
		w.retry(m, attempt)
		return
	}
	metrics.IncWorker("applied")
	_ = m.Ack()
}

func (w *Worker) retry(m message, attempt uint64) {
	metrics.IncWorker("retried")
	_ = m.NakWithDelay(w.opts.Backoff.Delay(attempt))
}

func (w *Worker) deadLetter(m message, reason string) {
	metrics.IncWorker("dead_lettered")
	if w.dlq != nil {
		body, _ := json.Marshal(map[string]any{
			"subject": events.SubjectPersist,
			"reason":  reason,
			"payload": json.RawMessage(validJSON(m.Data())),
		})
		if _, err := w.dlq.Publish(events.SubjectDLQ, body); err != nil {
			w.log.Warn("dlq publish failed", zap.Error(err))
		}
	}
	_ = m.Ack()
}

func validJSON(b []byte) []byte {
	if json.Valid(b) {
		return b
	}
	q, _ := json.Marshal(string(b))
	return q
}

type natsMsg struct{ m *nats.Msg }

func (n natsMsg) Data() []byte { return n.m.Data }

func (n natsMsg) NumDelivered() uint64 {
	md, err := n.m.Metadata()
	if err != nil || md == nil {
		return 1
	}
	return md.NumDelivered
}

func (n natsMsg) Ack() error                         { return n.m.Ack() }
func (n natsMsg) NakWithDelay(d time.Duration) error { return n.m.NakWithDelay(d) }
