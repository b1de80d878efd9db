package outbox

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// What the replay loop did with a dead-lettered event.
const (
	dlqActionRequeued    = "requeued"
	dlqActionRescheduled = "rescheduled"
	dlqActionQuarantined = "quarantined"
)

var (
	dlqActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittogether",
		Subsystem: "dlq",
		Name:      "entries_handled_total",
		Help:      "Dead-lettered workout events handled by the replay loop, by event type and action.",
	}, []string{"event_type", "action"})

	dlqEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fittogether",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Rows in outbox_dlq, split into waiting for replay and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqActions, dlqEntries)
}

func recordDLQAction(entry dlqEntry, action string) {
	dlqActions.WithLabelValues(entry.EventType, action).Inc()
}

// refreshGauges recounts outbox_dlq. A failed count leaves the gauges at
// their previous values and is logged.
func (m *DLQManager) refreshGauges(ctx context.Context) {
	var waiting, quarantined int
	err := m.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
                COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
           FROM outbox_dlq`).Scan(&waiting, &quarantined)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.log.Warn().Err(err).Msg("dlq gauge refresh failed")
		}
		return
	}
	dlqEntries.WithLabelValues("waiting").Set(float64(waiting))
	dlqEntries.WithLabelValues("quarantined").Set(float64(quarantined))
}
