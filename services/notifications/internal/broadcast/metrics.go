package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recipients = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "learning",
		Subsystem: "notifications",
		Name:      "broadcast_recipients",
		Help:      "Recipients per broadcast",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"audience"})

	publishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "learning",
		Subsystem: "notifications",
		Name:      "realtime_publish_failures_total",
		Help:      "Realtime fan-out chunks that failed to publish",
	})
)

func observeRecipients(audience string, n int) { recipients.WithLabelValues(audience).Observe(float64(n)) }
func incPublishFailure()                       { publishFailures.Inc() }
