// Package metrics registers the progress service Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	PersistOK      = "ok"
	PersistFailed  = "failed"
	PersistSkipped = "skipped"
	PersistStale   = "stale"
)

var (
	persistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "learning",
		Subsystem: "progress",
		Name:      "persist_total",
		Help:      "Progress persist attempts by outcome",
	}, []string{"outcome"})

	persistSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "learning",
		Subsystem: "progress",
		Name:      "persist_seconds",
		Help:      "Latency of progress upserts against the persistence gateway",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	loadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "learning",
		Subsystem: "progress",
		Name:      "load_failures_total",
		Help:      "Progress reads that failed open to no saved progress",
	}, []string{"op"})

	playerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "learning",
		Subsystem: "playback",
		Name:      "transitions_total",
		Help:      "Playback controller state transitions",
	}, []string{"to"})

	workerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "learning",
		Subsystem: "progress",
		Name:      "worker_messages_total",
		Help:      "Persist events handled by the worker by outcome",
	}, []string{"outcome"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "learning",
		Subsystem: "playback",
		Name:      "sessions_active",
		Help:      "Playback sessions currently held in memory",
	})
)

func IncPersist(outcome string) {
	persistTotal.WithLabelValues(outcome).Inc()
}

func ObservePersistSeconds(s float64) {
	persistSeconds.Observe(s)
}

func IncLoadFailure(op string) {
	loadFailures.WithLabelValues(op).Inc()
}

func IncTransition(to string) {
	playerTransitions.WithLabelValues(to).Inc()
}

func IncWorker(outcome string) {
	workerMessages.WithLabelValues(outcome).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
