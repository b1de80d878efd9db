package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Where a claimed event ended up.
const (
	outcomeDelivered    = "delivered"
	outcomeDeadLettered = "dead_lettered"
)

var (
	dispatchedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittogether",
		Subsystem: "outbox",
		Name:      "events_dispatched_total",
		Help:      "Workout events leaving the outbox, by event type and whether they reached Kafka or outbox_dlq.",
	}, []string{"event_type", "outcome"})

	deliveryLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fittogether",
		Subsystem: "outbox",
		Name:      "delivery_lag_seconds",
		Help:      "Time between a favorite or workout change committing and its event reaching Kafka.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fittogether",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time to claim, publish and settle one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	claimedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittogether",
		Subsystem: "outbox",
		Name:      "claimed_events",
		Help:      "Events claimed by the latest non-empty batch.",
	})
)

func init() {
	prometheus.MustRegister(dispatchedCounter, deliveryLag, batchDuration, claimedGauge)
}

func recordDispatched(messages []Message, outcome string, now time.Time) {
	for _, msg := range messages {
		dispatchedCounter.WithLabelValues(msg.EventType, outcome).Inc()
		if outcome == outcomeDelivered && !msg.CreatedAt.IsZero() {
			deliveryLag.Observe(now.Sub(msg.CreatedAt).Seconds())
		}
	}
}
