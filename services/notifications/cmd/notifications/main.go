package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/analytics"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/db"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/internal/platform/logging"
	"github.com/example/learning-platform/internal/platform/natsconn"
	"github.com/example/learning-platform/internal/platform/ratelimit"
	"github.com/example/learning-platform/internal/platform/run"
	"github.com/example/learning-platform/services/notifications/internal/broadcast"
	"github.com/example/learning-platform/services/notifications/internal/config"
	"github.com/example/learning-platform/services/notifications/internal/handlers"
	"github.com/example/learning-platform/services/notifications/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		log.Error("JWT_SECRET is required")
		run.Exit(1)
	}

	runner := run.New(log)

	st, dir, pool := initStores(cfg, log)
	if pool != nil {
		runner.OnShutdown(func(context.Context) error { pool.Close(); return nil })
	}

	var js nats.JetStreamContext
	if cfg.NATSURL != "" {
		nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
		if err != nil {
			log.Error("nats connect, realtime delivery disabled", zap.Error(err))
		} else {
			runner.OnShutdown(func(context.Context) error { return nc.Drain() })
			if js, err = nc.JetStream(); err != nil {
				log.Error("jetstream", zap.Error(err))
				js = nil
			} else if err := natsconn.EnsureStream(js, natsconn.StreamSpec{
				Name:     broadcast.Stream,
				Subjects: []string{"notifications.>"},
				MaxAge:   24 * time.Hour,
			}); err != nil {
				log.Warn("ensure notifications stream", zap.Error(err))
			}
		}
	} else {
		log.Warn("NATS_URL not set, realtime delivery disabled")
	}

	b := broadcast.New(st, dir, js, analytics.New(js, log), log, broadcast.Options{
		ChunkSize:   cfg.ChunkSize,
		Parallelism: cfg.Parallelism,
	})

	limiter := ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, "notifications")

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
		ReadyFunc: func() error {
			if pool == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(ctx)
		},
	})
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		handlers.Mount(r, handlers.Deps{
			Log:         log,
			Verifier:    auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)},
			Store:       st,
			Broadcaster: b,
			Timeout:     cfg.StoreTimeout,
		})
	})
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})
	runner.OnShutdown(srv.Shutdown)

	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			t := time.NewTicker(time.Minute)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					limiter.Sweep()
				}
			}
		}()
		return srv.Start()
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

func initStores(cfg config.Notifications, log *zap.Logger) (store.Store, store.Directory, *pgxpool.Pool) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			log.Error("DATABASE_URL is required in production")
			run.Exit(1)
		}
		log.Warn("DATABASE_URL not set, using in-memory stores (development only)")
		return store.NewInMemoryStore(), store.NewInMemoryDirectory(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		log.Error("postgres unavailable", zap.Error(err))
		run.Exit(1)
	}
	if err := db.EnsureSchema(ctx, pool, store.Schema...); err != nil {
		pool.Close()
		log.Error("ensure schema", zap.Error(err))
		run.Exit(1)
	}
	return store.NewPostgresStore(pool), store.NewPostgresDirectory(pool), pool
}
