package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	favoriteToggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittogether",
		Subsystem: "favorites",
		Name:      "toggles_total",
		Help:      "Favorite toggles partitioned by outcome (added, removed, failed).",
	}, []string{"outcome"})
	favoriteConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittogether",
		Subsystem: "favorites",
		Name:      "unique_conflicts_total",
		Help:      "Favorite inserts that lost a race to a concurrent insert and resolved as already favorited.",
	})
	profileProvisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittogether",
		Subsystem: "profiles",
		Name:      "provisions_total",
		Help:      "Profile auto-provisioning attempts partitioned by result.",
	}, []string{"result"})
	workoutWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittogether",
		Subsystem: "persistence",
		Name:      "last_workout_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout create or update.",
	})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fittogether",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency partitioned by route pattern and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(favoriteToggles, favoriteConflicts, profileProvisions, workoutWriteGauge, httpDuration)
}

// FavoriteToggled records a toggle outcome; state is the resulting favorite state.
func FavoriteToggled(state bool, err error) {
	switch {
	case err != nil:
		favoriteToggles.WithLabelValues("failed").Inc()
	case state:
		favoriteToggles.WithLabelValues("added").Inc()
	default:
		favoriteToggles.WithLabelValues("removed").Inc()
	}
}

// FavoriteConflictResolved counts uniqueness conflicts treated as already favorited.
func FavoriteConflictResolved() {
	favoriteConflicts.Inc()
}

// ProfileProvisioned records the outcome of a provisioning attempt.
func ProfileProvisioned(err error) {
	if err != nil {
		profileProvisions.WithLabelValues("failed").Inc()
		return
	}
	profileProvisions.WithLabelValues("ok").Inc()
}

// RecordWorkoutWrite updates the workout write watermark gauge.
func RecordWorkoutWrite(ts time.Time) {
	if ts.IsZero() {
		return
	}
	workoutWriteGauge.Set(float64(ts.Unix()))
}

// ObserveHTTP records a request latency sample.
func ObserveHTTP(route, status string, elapsed time.Duration) {
	httpDuration.WithLabelValues(route, status).Observe(elapsed.Seconds())
}

// Exported collectors for tests.
var (
	FavoriteToggles   = favoriteToggles
	FavoriteConflicts = favoriteConflicts
	ProfileProvisions = profileProvisions
)
