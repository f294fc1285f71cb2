// Package consumer manages the JetStream pull consumer for the analytics service.
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/natsconn"
)

const (
	Stream  = "ANALYTICS"
	Durable = "analytics_processor"
)

// Dispatcher handles one message; see handler.Dispatcher.
type Dispatcher interface {
	Dispatch(subject string, data []byte) bool
}

// Consumer wraps a JetStream pull subscription and dispatches messages.
type Consumer struct {
	sub        *nats.Subscription
	dispatcher Dispatcher
	batchSize  int
	wait       time.Duration
	log        *zap.Logger
}

// New ensures the ANALYTICS stream covers analytics.> and binds a durable
// pull consumer to it.
func New(js nats.JetStreamContext, d Dispatcher, batchSize int, wait time.Duration, log *zap.Logger) (*Consumer, error) {
	if err := natsconn.EnsureStream(js, natsconn.StreamSpec{
		Name:     Stream,
		Subjects: []string{"analytics.>"},
		MaxAge:   30 * 24 * time.Hour,
	}); err != nil {
		return nil, err
	}
	sub, err := js.PullSubscribe("analytics.>", Durable, nats.BindStream(Stream), nats.ManualAck())
	if err != nil {
		return nil, err
	}
	return &Consumer{sub: sub, dispatcher: d, batchSize: batchSize, wait: wait, log: log}, nil
}

// Run processes messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.sub.Fetch(c.batchSize, nats.MaxWait(c.wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.Error("analytics consumer: fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			c.dispatcher.Dispatch(msg.Subject, msg.Data)
			if err := msg.Ack(); err != nil {
				c.log.Warn("analytics consumer: ack", zap.Error(err))
			}
		}
	}
}

// Close unsubscribes without deleting the durable consumer.
func (c *Consumer) Close() error {
	return c.sub.Drain()
}
