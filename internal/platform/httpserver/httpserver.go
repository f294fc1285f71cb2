package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Server wraps http.Server with the service logger and timeouts.
type Server struct {
	HTTP *http.Server
	log  *zap.Logger
}

// Options configures New. Zero timeouts take the defaults below, except
// WriteTimeout which stays unset unless given.
type Options struct {
	Addr              string
	ServiceName       string
	Logger            *zap.Logger
	Router            chi.Router
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultIdleTimeout       = 2 * time.Minute
)

func New(opts Options) *Server {
	if opts.Router == nil {
		r := chi.NewRouter()
		SetupRouter(r)
		opts.Router = r
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.With(zap.String("component", "http"))
	if opts.ServiceName != "" {
		log = log.With(zap.String("service", opts.ServiceName))
	}

	return &Server{
		HTTP: &http.Server{
			Addr:              opts.Addr,
			Handler:           opts.Router,
			ReadHeaderTimeout: orDefault(opts.ReadHeaderTimeout, defaultReadHeaderTimeout),
			ReadTimeout:       orDefault(opts.ReadTimeout, defaultReadTimeout),
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       orDefault(opts.IdleTimeout, defaultIdleTimeout),
			ErrorLog:          zap.NewStdLog(log),
		},
		log: log,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Start listens on Options.Addr. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.HTTP.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts on ln, which Start and tests both use.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("http server starting", zap.String("addr", ln.Addr().String()))
	return s.HTTP.Serve(ln)
}

// Shutdown stops accepting, then waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.HTTP.SetKeepAlivesEnabled(false)
	err := s.HTTP.Shutdown(ctx)
	s.log.Info("http server stopped", zap.Error(err))
	return err
}
