package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func workoutMessage(offset int64, eventType, payload string, headers ...kafka.Header) kafka.Message {
	return kafka.Message{
		Topic:     "workout_events",
		Partition: 0,
		Offset:    offset,
		Key:       []byte("w-1"),
		Time:      time.Now().UTC(),
		Value:     []byte(payload),
		Headers:   append([]kafka.Header{{Key: "event_type", Value: []byte(eventType)}}, headers...),
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := `{"favorite_id":"f-1","workout_id":"w-1"}`
	msg := workoutMessage(10, "favorite.added", payload, kafka.Header{Key: "dedupe_key", Value: []byte("f-1:favorite.added")})

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}
	processor := NewProcessor(reader, handler, WithLogger(zerolog.New(zerolog.NewTestWriter(t))))

	before := testutil.ToFloat64(eventsCounter.WithLabelValues("favorite.added", outcomeHandled))
	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "favorite.added", handler.last.EventType)
	require.Equal(t, "f-1:favorite.added", handler.last.DedupeKey)
	require.Equal(t, "w-1", handler.last.Key)
	require.JSONEq(t, payload, string(handler.last.Payload))
	require.InDelta(t, before+1, testutil.ToFloat64(eventsCounter.WithLabelValues("favorite.added", outcomeHandled)), 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{workoutMessage(20, "favorite.removed", `{"workout_id":"w-1"}`)}}
	handler := &stubHandler{err: errors.New("boom")}
	processor := NewProcessor(reader, handler, WithLogger(zerolog.Nop()))

	before := testutil.ToFloat64(eventsCounter.WithLabelValues("favorite.removed", outcomeFailed))
	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)
	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
	require.InDelta(t, before+1, testutil.ToFloat64(eventsCounter.WithLabelValues("favorite.removed", outcomeFailed)), 0.0001)
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	noType := workoutMessage(30, "", `{}`)
	badJSON := workoutMessage(31, "favorite.added", `not json`)
	reader := &stubReader{messages: []kafka.Message{noType, badJSON}}
	handler := &stubHandler{}
	processor := NewProcessor(reader, handler, WithLogger(zerolog.Nop()))

	beforeMissing := testutil.ToFloat64(rejectedCounter.WithLabelValues(reasonMissingEventType))
	beforeInvalid := testutil.ToFloat64(rejectedCounter.WithLabelValues(reasonInvalidPayload))
	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
	require.InDelta(t, beforeMissing+1, testutil.ToFloat64(rejectedCounter.WithLabelValues(reasonMissingEventType)), 0.0001)
	require.InDelta(t, beforeInvalid+1, testutil.ToFloat64(rejectedCounter.WithLabelValues(reasonInvalidPayload)), 0.0001)
}

func TestDecodeFallsBackToOffsetDedupeKey(t *testing.T) {
	msg, err := decodeMessage(workoutMessage(7, "workout.deleted", `{"workout_id":"w-1"}`))
	require.NoError(t, err)
	require.Equal(t, "workout_events/0/7", msg.DedupeKey)
}

func TestProcessorStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handler := &stubHandler{}
	err := NewProcessor(&stubReader{}, handler).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, handler.calls)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
