// Package config loads the progress service settings from the environment.
package config

import (
	"time"

	platformcfg "github.com/example/learning-platform/internal/platform/config"
)

type Progress struct {
	platformcfg.AppConfig

	GRPCAddr           string
	DatabaseURL        string
	RedisURL           string
	NATSURL            string
	JWTSecret          string
	MediaSigningSecret string
	MediaURLTTL        time.Duration
	CORSOrigins        []string

	// AsyncWrites routes PUT /v1/progress through the persist worker.
	AsyncWrites bool
	// RunWorker starts the JetStream persist consumer in this process.
	RunWorker bool

	StoreTimeout     time.Duration
	LessonCacheTTL   time.Duration
	IdempotencyTTL   time.Duration
	SaveInterval     time.Duration
	ReadyTimeout     time.Duration
	SessionIdleTTL   time.Duration
	WorkerMaxDeliver int

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (Progress, error) {
	app, err := platformcfg.Load()
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		AppConfig:          app,
		GRPCAddr:           platformcfg.String("GRPC_ADDR", ":9090"),
		DatabaseURL:        platformcfg.String("DATABASE_URL", ""),
		RedisURL:           platformcfg.String("REDIS_URL", ""),
		NATSURL:            platformcfg.String("NATS_URL", ""),
		JWTSecret:          platformcfg.String("JWT_SECRET", ""),
		MediaSigningSecret: platformcfg.String("MEDIA_SIGNING_SECRET", ""),
		MediaURLTTL:        platformcfg.Duration("MEDIA_URL_TTL", 15*time.Minute),
		CORSOrigins:        platformcfg.List("CORS_ALLOWED_ORIGINS"),
		AsyncWrites:        platformcfg.Bool("PROGRESS_ASYNC_WRITES", false),
		RunWorker:          platformcfg.Bool("PROGRESS_RUN_WORKER", true),
		StoreTimeout:       platformcfg.Duration("PROGRESS_STORE_TIMEOUT", 5*time.Second),
		LessonCacheTTL:     platformcfg.Duration("PROGRESS_LESSON_CACHE_TTL", 5*time.Minute),
		IdempotencyTTL:     platformcfg.Duration("PROGRESS_IDEMPOTENCY_TTL", 24*time.Hour),
		SaveInterval:       platformcfg.Duration("PROGRESS_SAVE_INTERVAL", 5*time.Second),
		ReadyTimeout:       platformcfg.Duration("PROGRESS_READY_TIMEOUT", 15*time.Second),
		SessionIdleTTL:     platformcfg.Duration("PROGRESS_SESSION_IDLE_TTL", 30*time.Minute),
		WorkerMaxDeliver:   platformcfg.Int("PROGRESS_WORKER_MAX_DELIVER", 5),
		RateLimitRPS:       float64(platformcfg.Int("RATE_LIMIT_RPS", 20)),
		RateLimitBurst:     platformcfg.Int("RATE_LIMIT_BURST", 40),
	}, nil
}
