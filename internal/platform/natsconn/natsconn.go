// Package natsconn provides a shared NATS connection factory with
// configurable reconnect behaviour and fail-fast semantics.
package natsconn

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	platformcfg "github.com/example/learning-platform/internal/platform/config"
)

const (
	defaultURL           = "nats://nats:4222"
	defaultMaxReconnects = 5
	defaultReconnectWait = 2 * time.Second
	defaultMaxAge        = 7 * 24 * time.Hour
)

// Options configures the NATS connection behaviour.
// Zero values fall back to env vars or built-in defaults.
type Options struct {
	URL           string
	Name          string
	MaxReconnects int           // default from NATS_MAX_RECONNECTS or 5; negative retries forever
	ReconnectWait time.Duration // default from NATS_RECONNECT_WAIT or 2s
}

// Connect establishes a NATS connection with the configured retry policy.
// On failure after all retries it returns an error so the caller can fail-fast.
func Connect(opts Options) (*nats.Conn, error) {
	opts = opts.withDefaults()

	natsOpts := []nats.Option{
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.RetryOnFailedConnect(false),
	}
	if opts.Name != "" {
		natsOpts = append(natsOpts, nats.Name(opts.Name))
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (max_reconnects=%d, wait=%s): %w",
			opts.URL, opts.MaxReconnects, opts.ReconnectWait, err)
	}
	return nc, nil
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = platformcfg.String("NATS_URL", defaultURL)
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = platformcfg.Int("NATS_MAX_RECONNECTS", defaultMaxReconnects)
	}
	if o.ReconnectWait == 0 {
		o.ReconnectWait = platformcfg.Duration("NATS_RECONNECT_WAIT", defaultReconnectWait)
	}
	return o
}

// StreamManager is the part of nats.JetStreamContext EnsureStream needs.
type StreamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// StreamSpec describes a JetStream stream that a service owns.
type StreamSpec struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// EnsureStream creates the stream or widens its subject list so that every
// subject in spec is covered.
func EnsureStream(js StreamManager, spec StreamSpec) error {
	info, err := js.StreamInfo(spec.Name)
	if err == nil {
		have := make(map[string]bool, len(info.Config.Subjects))
		for _, s := range info.Config.Subjects {
			have[s] = true
		}
		missing := false
		for _, s := range spec.Subjects {
			if !have[s] {
				missing = true
				info.Config.Subjects = append(info.Config.Subjects, s)
			}
		}
		if !missing {
			return nil
		}
		cfg := info.Config
		_, err = js.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	maxAge := spec.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     spec.Name,
		Subjects: spec.Subjects,
		Storage:  nats.FileStorage,
		MaxAge:   maxAge,
	})
	return err
}
