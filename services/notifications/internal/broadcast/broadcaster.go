// Package broadcast fans a notification out to an audience: one recipient
// row per user, then realtime messages on NATS in parallel chunks.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/learning-platform/internal/platform/analytics"
	"github.com/example/learning-platform/services/notifications/internal/domain"
	"github.com/example/learning-platform/services/notifications/internal/store"
)

const (
	Stream         = "NOTIFICATIONS"
	SubjectCreated = "notifications.created"

	defaultChunkSize   = 500
	defaultParallelism = 4
)

var ErrNoRecipients = errors.New("audience has no recipients")

// Publisher is the subset of nats.JetStreamContext the broadcaster needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Created is the realtime message, one per chunk of recipients.
type Created struct {
	NotificationID string    `json:"notification_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	UserIDs        []string  `json:"user_ids"`
	Chunk          int       `json:"chunk"`
}

type Options struct {
	ChunkSize   int
	Parallelism int
	Now         func() time.Time
}

type Broadcaster struct {
	store     store.Store
	directory store.Directory
	js        Publisher
	analytics *analytics.Publisher
	log       *zap.Logger
	opts      Options
}

// New returns a broadcaster. js may be nil, in which case recipient rows
// are still written and realtime delivery is skipped.
func New(st store.Store, dir store.Directory, js Publisher, pub *analytics.Publisher, log *zap.Logger, opts Options) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broadcaster{store: st, directory: dir, js: js, analytics: pub, log: log, opts: opts}
}

// Result reports what a broadcast reached.
type Result struct {
	Notification domain.Notification `json:"notification"`
	Recipients   int                 `json:"recipients"`
	Delivered    int                 `json:"delivered"`
}

// Broadcast stores n for every user of the audience. Realtime publish
// failures are logged and counted; the stored rows stand.
func (b *Broadcaster) Broadcast(ctx context.Context, n domain.Notification) (Result, error) {
	if err := n.Validate(); err != nil {
		return Result{}, err
	}
	aud, err := domain.ParseAudience(string(n.Audience))
	if err != nil {
		return Result{}, err
	}
	n.Audience = aud
	if n.CreatedAt.IsZero() {
		n.CreatedAt = b.opts.Now().UTC()
	}

	ids, err := b.directory.UserIDs(ctx, aud.Role())
	if err != nil {
		return Result{}, err
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return Result{}, ErrNoRecipients
	}

	saved, err := b.store.Create(ctx, n, ids)
	if err != nil {
		return Result{}, err
	}
	observeRecipients(string(aud), len(ids))

	delivered := b.publish(ctx, saved, ids)
	b.analytics.Publish(analytics.SubjectNotificationSent, "notification_broadcast", saved.CreatedBy, map[string]any{
		"notification_id": saved.ID,
		"audience":        string(aud),
		"recipients":      len(ids),
	})
	b.log.Info("notification broadcast",
		zap.String("notification_id", saved.ID),
		zap.String("audience", string(aud)),
		zap.Int("recipients", len(ids)),
		zap.Int("delivered", delivered))
	return Result{Notification: saved, Recipients: len(ids), Delivered: delivered}, nil
}

// publish sends one message per chunk and returns how many recipients were
// covered by a successfully published chunk.
func (b *Broadcaster) publish(ctx context.Context, n domain.Notification, ids []string) int {
	if b.js == nil {
		return 0
	}
	chunks := chunk(ids, b.opts.ChunkSize)
	ok := make([]bool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Parallelism)
	for i, part := range chunks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			body, err := json.Marshal(Created{
				NotificationID: n.ID,
				Title:          n.Title,
				Body:           n.Body,
				CreatedAt:      n.CreatedAt,
				UserIDs:        part,
				Chunk:          i,
			})
			if err != nil {
				return err
			}
			if _, err := b.js.Publish(SubjectCreated, body, nats.MsgId(n.ID+"-"+strconv.Itoa(i))); err != nil {
				incPublishFailure()
				b.log.Warn("realtime publish failed",
					zap.String("notification_id", n.ID), zap.Int("chunk", i), zap.Error(err))
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.log.Warn("realtime fan-out aborted", zap.String("notification_id", n.ID), zap.Error(err))
	}

	delivered := 0
	for i, sent := range ok {
		if sent {
			delivered += len(chunks[i])
		}
	}
	return delivered
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
