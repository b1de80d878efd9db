//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fittogether/internal/events"
	"example.com/fittogether/internal/pgtest"
)

const topic = "workout_events"

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t)

	workoutID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, workoutID, events.TypeFavoriteAdded))

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, 10*time.Millisecond, 5)

	delivered := dispatchedCounter.WithLabelValues(events.TypeFavoriteAdded, outcomeDelivered)
	beforeDelivered := testutil.ToFloat64(delivered)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, topic, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)
	require.Equal(t, workoutID, string(producer.writes[0].messages[0].Key))

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(delivered), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "published events are not delivered twice")
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t)

	require.NotZero(t, seedOutbox(t, ctx, pool, uuid.NewString(), events.TypeFavoriteRemoved))

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, 10*time.Millisecond, 5)

	deadLettered := dispatchedCounter.WithLabelValues(events.TypeFavoriteRemoved, outcomeDeadLettered)
	before := testutil.ToFloat64(deadLettered)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, before+1, testutil.ToFloat64(deadLettered), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)
}

func TestDispatcherUnknownEventTypeMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t)

	eventID := seedOutbox(t, ctx, pool, uuid.NewString(), "workout.renamed")
	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Empty(t, producer.writes)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "unknown event_type=workout.renamed")
}

func TestDLQReplayRequeuesOriginalEvent(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t)
	eventID := seedOutbox(t, ctx, pool, uuid.NewString(), events.TypeFavoriteAdded)

	failing := NewDispatcher(pool, &stubProducer{err: errors.New("broker down")}, 10*time.Millisecond, 5)
	require.NoError(t, failing.processBatch(ctx))

	requeued := dlqActions.WithLabelValues(events.TypeFavoriteAdded, dlqActionRequeued)
	before := testutil.ToFloat64(requeued)

	manager := NewDLQManager(pool, 5, time.Second)
	replayed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)
	require.InDelta(t, before+1, testutil.ToFloat64(requeued), 0.0001)
	require.Zero(t, testutil.ToFloat64(dlqEntries.WithLabelValues("waiting")))

	backlog, err := manager.Backlog(ctx)
	require.NoError(t, err)
	require.Zero(t, backlog)

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_id = $1 AND published_at IS NULL`, eventID).Scan(&pending))
	require.Equal(t, 1, pending, "the original row is reset rather than duplicated")

	producer := &stubProducer{}
	require.NoError(t, NewDispatcher(pool, producer, 10*time.Millisecond, 5).processBatch(ctx))
	require.Len(t, producer.writes, 1)
}

func TestDLQQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t)
	seedOutbox(t, ctx, pool, uuid.NewString(), events.TypeFavoriteAdded)
	require.NoError(t, NewDispatcher(pool, &stubProducer{err: errors.New("broker down")}, time.Millisecond, 5).processBatch(ctx))

	_, err := pool.Exec(ctx, `UPDATE outbox_dlq SET retry_count = 5`)
	require.NoError(t, err)

	replayed, err := NewDLQManager(pool, 5, time.Second).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, replayed)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantine_reason FROM outbox_dlq`).Scan(&reason))
	require.Equal(t, quarantineReason, reason)
	require.Equal(t, 1.0, testutil.ToFloat64(dlqEntries.WithLabelValues("quarantined")))
	require.Zero(t, testutil.ToFloat64(dlqEntries.WithLabelValues("waiting")))
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, workoutID, eventType string) int64 {
	t.Helper()

	favoriteID := uuid.NewString()
	payload, err := json.Marshal(events.FavoriteAdded{
		FavoriteID: favoriteID,
		UserID:     uuid.NewString(),
		WorkoutID:  workoutID,
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	var eventID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         RETURNING event_id`,
		events.AggregateWorkout, workoutID, eventType, topic, workoutID, payload, events.DedupeKey(favoriteID, eventType),
	).Scan(&eventID))
	return eventID
}
