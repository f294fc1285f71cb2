package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/learning-platform/internal/platform/analytics"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/db"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/internal/platform/logging"
	"github.com/example/learning-platform/internal/platform/natsconn"
	"github.com/example/learning-platform/internal/platform/ratelimit"
	"github.com/example/learning-platform/internal/platform/run"
	"github.com/example/learning-platform/internal/platform/signing"
	"github.com/example/learning-platform/services/progress/internal/config"
	"github.com/example/learning-platform/services/progress/internal/grpcapi"
	"github.com/example/learning-platform/services/progress/internal/handlers"
	"github.com/example/learning-platform/services/progress/internal/idempotency"
	"github.com/example/learning-platform/services/progress/internal/playback"
	"github.com/example/learning-platform/services/progress/internal/session"
	"github.com/example/learning-platform/services/progress/internal/store"
	"github.com/example/learning-platform/services/progress/internal/worker"
)

type stores struct {
	progress store.ProgressRepository
	lessons  store.LessonRepository
	ratings  store.RatingStore
}

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
		if cfg.IsProduction() {
			log.Error("JWT_SECRET is required in production")
			run.Exit(1)
		}
		log.Warn("JWT_SECRET not set, all requests are anonymous")
	}
	if cfg.MediaSigningSecret == "" {
		log.Warn("MEDIA_SIGNING_SECRET not set, video urls are served unsigned")
	}

	runner := run.New(log)

	pool := initPostgres(cfg, log)
	if pool != nil {
		runner.OnShutdown(func(context.Context) error { pool.Close(); return nil })
	}
	rdb := initRedis(cfg, log)
	if rdb != nil {
		runner.OnShutdown(func(context.Context) error { return rdb.Close() })
	}
	st := initStores(cfg, log, pool, rdb)

	nc, js := initNATS(cfg, log)
	if nc != nil {
		runner.OnShutdown(func(context.Context) error { return nc.Drain() })
	}

	signer := signing.New(cfg.MediaSigningSecret, cfg.MediaURLTTL)
	pub := analytics.New(js, log)
	sessions := session.NewManager(session.Deps{
		Progress:  st.progress,
		Lessons:   st.lessons,
		Signer:    signer,
		Analytics: pub,
		Log:       log,
	}, session.Config{
		IdleTTL:        cfg.SessionIdleTTL,
		TrackerTimeout: cfg.StoreTimeout,
		Playback: playback.Config{
			SaveInterval: cfg.SaveInterval,
			ReadyTimeout: cfg.ReadyTimeout,
		},
	})

	limiter := ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, "progress")

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
			Log:       log,
			Verifier:  auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)},
			Progress:  st.progress,
			Lessons:   st.lessons,
			Ratings:   st.ratings,
			Sessions:  sessions,
			Signer:    signer,
			Events:    handlers.NewEventPublisher(js, cfg.AsyncWrites),
			Analytics: pub,
			Timeout:   cfg.StoreTimeout,
		})
	})
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})
	runner.OnShutdown(srv.Shutdown)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.LoggingInterceptor(log)))
	grpcapi.RegisterProgressServer(grpcSrv, &grpcapi.ProgressService{Progress: st.progress, Log: log})
	runner.OnShutdown(func(ctx context.Context) error {
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
		return nil
	})

	var persistWorker *worker.Worker
	if js != nil && cfg.RunWorker {
		idem, kind, err := idempotency.NewStore(rdb, pool, cfg.IdempotencyTTL, cfg.IsProduction())
		if err != nil {
			log.Error("idempotency store", zap.Error(err))
			run.Exit(1)
		}
		log.Info("idempotency store selected", zap.String("backend", kind))
		persistWorker = worker.New(log, js, st.progress, idem, worker.Options{MaxDeliver: cfg.WorkerMaxDeliver})
	}

	code := runner.WithSignals(func(ctx context.Context) error {
		go sessions.Run(ctx)
		go sweepLimiter(ctx, limiter)
		if persistWorker != nil {
			go func() {
				if err := persistWorker.Run(ctx); err != nil {
					log.Error("persist worker stopped", zap.Error(err))
				}
			}()
		}
		go func() {
			log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error("grpc serve", zap.Error(err))
			}
		}()
		return srv.Start()
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initPostgres opens the pool. In production (APP_ENV=production) a working
// Postgres is required and the process terminates otherwise.
func initPostgres(cfg config.Progress, log *zap.Logger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			log.Error("DATABASE_URL is required in production")
			run.Exit(1)
		}
		log.Warn("DATABASE_URL not set, using in-memory stores (development only)")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		if cfg.IsProduction() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory stores", zap.Error(err))
		return nil
	}
	if err := db.EnsureSchema(ctx, pool, store.Schema...); err != nil {
		pool.Close()
		log.Error("ensure schema", zap.Error(err))
		run.Exit(1)
	}
	return pool
}

// initRedis returns nil when REDIS_URL is unset or unreachable; Redis only
// backs caches and deduplication.
func initRedis(cfg config.Progress, log *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.RedisURL}
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Warn("redis unavailable, lesson cache disabled", zap.Error(err))
		return nil
	}
	return client
}

func initStores(cfg config.Progress, log *zap.Logger, pool *pgxpool.Pool, rdb *redis.Client) stores {
	var st stores
	if pool != nil {
		log.Info("stores: postgres")
		st = stores{
			progress: store.NewPostgresProgressRepository(pool),
			lessons:  store.NewPostgresLessonRepository(pool),
			ratings:  store.NewPostgresRatingStore(pool),
		}
	} else {
		st = stores{
			progress: store.NewInMemoryProgressRepository(),
			lessons:  store.NewInMemoryLessonRepository(),
			ratings:  store.NewInMemoryRatingStore(),
		}
	}
	if rdb != nil {
		log.Info("lesson cache: redis", zap.Duration("ttl", cfg.LessonCacheTTL))
		st.lessons = store.NewCachedLessonRepository(st.lessons, rdb, cfg.LessonCacheTTL, log)
	}
	return st
}

// initNATS connects when NATS_URL is set. Without it async writes, the
// worker and analytics are disabled.
func initNATS(cfg config.Progress, log *zap.Logger) (*nats.Conn, nats.JetStreamContext) {
	if cfg.NATSURL == "" {
		log.Warn("NATS_URL not set, async writes and analytics disabled")
		return nil, nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		return nil, nil
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Error("jetstream", zap.Error(err))
		nc.Close()
		return nil, nil
	}
	return nc, js
}

func sweepLimiter(ctx context.Context, l *ratelimit.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
