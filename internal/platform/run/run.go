package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	Logger *zap.Logger
	// ShutdownTimeout bounds each registered shutdown hook. Defaults to 10s.
	ShutdownTimeout time.Duration

	hooks []func(context.Context) error
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, ShutdownTimeout: 10 * time.Second}
}

// OnShutdown registers a hook run in reverse registration order once the
// runner stops.
func (r *Runner) OnShutdown(fn func(context.Context) error) {
	r.hooks = append(r.hooks, fn)
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives, then runs
// shutdown hooks. It returns the process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.Run(ctx, start)
}

// Run is WithSignals with a caller-supplied context.
func (r *Runner) Run(ctx context.Context, start func(ctx context.Context) error) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	code := 0
	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error("service exited with error", zap.Error(err))
			code = 1
		}
	}
	cancel()
	r.shutdown()
	return code
}

func (r *Runner) shutdown() {
	timeout := r.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	for i := len(r.hooks) - 1; i >= 0; i-- {
		c, cancel := context.WithTimeout(context.Background(), timeout)
		if err := r.hooks[i](c); err != nil {
			r.Logger.Warn("shutdown hook failed", zap.Error(err))
		}
		cancel()
	}
}

func Exit(code int) {
	os.Exit(code)
}
