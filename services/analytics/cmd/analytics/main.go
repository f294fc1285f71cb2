package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/internal/platform/logging"
	"github.com/example/learning-platform/internal/platform/natsconn"
	"github.com/example/learning-platform/internal/platform/run"
	"github.com/example/learning-platform/services/analytics/internal/config"
	"github.com/example/learning-platform/services/analytics/internal/consumer"
	"github.com/example/learning-platform/services/analytics/internal/handler"
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

	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Error("jetstream", zap.Error(err))
		run.Exit(1)
	}

	dispatcher := handler.New(handler.NewMetricsSink(prometheus.DefaultRegisterer, log), log)
	c, err := consumer.New(js, dispatcher, cfg.BatchSize, cfg.FetchWait, log)
	if err != nil {
		log.Error("consumer init", zap.Error(err))
		run.Exit(1)
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger: log,
		ReadyFunc: func() error {
			if !nc.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		},
	})
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	runner.OnShutdown(func(context.Context) error { return nc.Drain() })
	runner.OnShutdown(func(context.Context) error { return c.Close() })
	runner.OnShutdown(srv.Shutdown)

	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			log.Info("analytics consumer started")
			c.Run(ctx)
			log.Info("analytics consumer stopped")
		}()
		return srv.Start()
	})
	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
