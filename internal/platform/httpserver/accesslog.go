package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "learning",
	Subsystem: "http",
	Name:      "request_seconds",
	Help:      "HTTP request latency by route pattern and status",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// AccessLog logs one line per request and records latency by chi route
// pattern. Probe endpoints are only measured.
func AccessLog(log *zap.Logger) func(next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			requestSeconds.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

			switch route {
			case "/healthz", "/readyz", "/metrics":
				return
			}
			fields := []zap.Field{
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed),
			}
			if status >= http.StatusInternalServerError {
				log.Warn("http request", fields...)
				return
			}
			log.Debug("http request", fields...)
		})
	}
}
