package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MetricsSink turns events into Prometheus series.
type MetricsSink struct {
	events    *prometheus.CounterVec
	completed *prometheus.CounterVec
	ratings   prometheus.Histogram
	fanout    prometheus.Histogram
	log       *zap.Logger
}

// NewMetricsSink registers its collectors on reg.
func NewMetricsSink(reg prometheus.Registerer, log *zap.Logger) *MetricsSink {
	if log == nil {
		log = zap.NewNop()
	}
	s := &MetricsSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learning",
			Subsystem: "analytics",
			Name:      "events_total",
			Help:      "Analytics events consumed by event name",
		}, []string{"event"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learning",
			Subsystem: "analytics",
			Name:      "lessons_completed_total",
			Help:      "Lesson completions by module",
		}, []string{"module_id"}),
		ratings: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "learning",
			Subsystem: "analytics",
			Name:      "lesson_rating",
			Help:      "Submitted lesson ratings",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "learning",
			Subsystem: "analytics",
			Name:      "broadcast_recipients",
			Help:      "Recipients per notification broadcast",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		log: log,
	}
	reg.MustRegister(s.events, s.completed, s.ratings, s.fanout)
	return s
}

func (s *MetricsSink) Capture(ev Captured) {
	s.events.WithLabelValues(ev.Event).Inc()
	switch ev.Event {
	case "lesson_completed":
		s.completed.WithLabelValues(ev.ModuleID).Inc()
	case "lesson_rated":
		s.ratings.Observe(ev.Value)
	case "notification_broadcast":
		s.fanout.Observe(ev.Value)
	case "playback_load_failed":
		s.log.Info("analytics: playback load failed",
			zap.String("user_id", ev.DistinctID),
			zap.String("lesson_id", ev.LessonID),
			zap.Any("reason", ev.Props["reason"]))
	}
}
