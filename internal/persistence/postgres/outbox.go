package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/fittogether/internal/events"
)

// recordEvent writes an event to the outbox in the caller's transaction so it
// commits or rolls back with the change it describes. Rows with a dedupe key
// already present are skipped.
func (s *Store) recordEvent(ctx context.Context, tx pgx.Tx, workoutID, eventType, dedupeKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         ON CONFLICT (dedupe_key) DO NOTHING`,
		events.AggregateWorkout, workoutID, eventType, s.topic, workoutID, body, dedupeKey,
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", eventType, err)
	}
	return nil
}
