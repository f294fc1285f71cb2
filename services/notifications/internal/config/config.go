// Package config loads the notifications service settings from the
// environment.
package config

import (
	"time"

	platformcfg "github.com/example/learning-platform/internal/platform/config"
)

type Notifications struct {
	platformcfg.AppConfig

	DatabaseURL string
	NATSURL     string
	JWTSecret   string
	CORSOrigins []string

	StoreTimeout time.Duration
	// ChunkSize is the number of recipients per realtime message.
	ChunkSize   int
	Parallelism int

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (Notifications, error) {
	app, err := platformcfg.Load()
	if err != nil {
		return Notifications{}, err
	}
	return Notifications{
		AppConfig:      app,
		DatabaseURL:    platformcfg.String("DATABASE_URL", ""),
		NATSURL:        platformcfg.String("NATS_URL", ""),
		JWTSecret:      platformcfg.String("JWT_SECRET", ""),
		CORSOrigins:    platformcfg.List("CORS_ALLOWED_ORIGINS"),
		StoreTimeout:   platformcfg.Duration("NOTIFICATIONS_STORE_TIMEOUT", 30*time.Second),
		ChunkSize:      platformcfg.Int("NOTIFICATIONS_CHUNK_SIZE", 500),
		Parallelism:    platformcfg.Int("NOTIFICATIONS_PARALLELISM", 4),
		RateLimitRPS:   float64(platformcfg.Int("RATE_LIMIT_RPS", 10)),
		RateLimitBurst: platformcfg.Int("RATE_LIMIT_BURST", 20),
	}, nil
}
