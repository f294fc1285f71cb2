// Package config loads the analytics consumer settings from the environment.
package config

import (
	"time"

	platformcfg "github.com/example/learning-platform/internal/platform/config"
)

type Analytics struct {
	platformcfg.AppConfig

	NATSURL   string
	BatchSize int
	FetchWait time.Duration
}

func Load() (Analytics, error) {
	app, err := platformcfg.Load()
	if err != nil {
		return Analytics{}, err
	}
	return Analytics{
		AppConfig: app,
		NATSURL:   platformcfg.String("NATS_URL", "nats://nats:4222"),
		BatchSize: platformcfg.Int("WORKER_BATCH_SIZE", 200),
		FetchWait: platformcfg.Duration("WORKER_FETCH_WAIT", 2*time.Second),
	}, nil
}
