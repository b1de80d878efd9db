package consumer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Handling outcomes recorded per event type.
const (
	outcomeHandled = "handled"
	outcomeFailed  = "failed"
)

// Reasons a message is dropped before reaching the handler.
const (
	reasonMissingEventType = "missing_event_type"
	reasonInvalidPayload   = "invalid_payload"
)

var (
	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittogether",
		Subsystem: "consumer",
		Name:      "events_total",
		Help:      "Workout events read from Kafka, by event type and handling outcome.",
	}, []string{"event_type", "outcome"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittogether",
		Subsystem: "consumer",
		Name:      "rejected_messages_total",
		Help:      "Messages committed without handling because they could not be decoded.",
	}, []string{"reason"})

	handlingLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fittogether",
		Subsystem: "consumer",
		Name:      "event_lag_seconds",
		Help:      "Delay between an event being published and the consumer finishing with it.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	statsChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittogether",
		Subsystem: "workout_stats",
		Name:      "changes_total",
		Help:      "Events applied to or skipped by the workout_stats projection.",
	}, []string{"event_type", "change"})
)

func init() {
	prometheus.MustRegister(eventsCounter, rejectedCounter, handlingLag, statsChanges)
}

func recordHandled(msg Message, now time.Time) {
	eventsCounter.WithLabelValues(msg.EventType, outcomeHandled).Inc()
	if !msg.Timestamp.IsZero() && now.After(msg.Timestamp) {
		handlingLag.Observe(now.Sub(msg.Timestamp).Seconds())
	}
}

func recordFailed(msg Message) {
	eventsCounter.WithLabelValues(msg.EventType, outcomeFailed).Inc()
}

func recordRejected(err error) {
	reason := reasonInvalidPayload
	if errors.Is(err, errMissingEventType) {
		reason = reasonMissingEventType
	}
	rejectedCounter.WithLabelValues(reason).Inc()
}

// recordStatsChange counts what the projection did with an event: "applied"
// or "duplicate" when the dedupe key was seen before.
func recordStatsChange(eventType string, applied bool) {
	change := "applied"
	if !applied {
		change = "duplicate"
	}
	statsChanges.WithLabelValues(eventType, change).Inc()
}
