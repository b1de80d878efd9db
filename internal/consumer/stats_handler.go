package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fittogether/internal/events"
)

// StatsHandler maintains the workout_stats projection. Each event is applied
// at most once, keyed by its dedupe key.
type StatsHandler struct {
	pool *pgxpool.Pool
}

// NewStatsHandler constructs a handler backed by pool.
func NewStatsHandler(pool *pgxpool.Pool) *StatsHandler {
	return &StatsHandler{pool: pool}
}

type workoutRef struct {
	WorkoutID string `json:"workout_id"`
}

// Handle applies msg to workout_stats.
func (h *StatsHandler) Handle(ctx context.Context, msg Message) error {
	var ref workoutRef
	if err := json.Unmarshal(msg.Payload, &ref); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}
	if ref.WorkoutID == "" {
		ref.WorkoutID = msg.Key
	}

	return pgx.BeginFunc(ctx, h.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO processed_events (dedupe_key) VALUES ($1) ON CONFLICT DO NOTHING`, msg.DedupeKey)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			recordStatsChange(msg.EventType, false)
			return nil
		}

		switch msg.EventType {
		case events.TypeFavoriteAdded:
			_, err = tx.Exec(ctx,
				`INSERT INTO workout_stats (workout_id, favorite_count, updated_at) VALUES ($1, 1, NOW())
                 ON CONFLICT (workout_id) DO UPDATE
                    SET favorite_count = workout_stats.favorite_count + 1, updated_at = NOW()`,
				ref.WorkoutID)
		case events.TypeFavoriteRemoved:
			_, err = tx.Exec(ctx,
				`INSERT INTO workout_stats (workout_id, favorite_count, updated_at) VALUES ($1, 0, NOW())
                 ON CONFLICT (workout_id) DO UPDATE
                    SET favorite_count = GREATEST(workout_stats.favorite_count - 1, 0), updated_at = NOW()`,
				ref.WorkoutID)
		case events.TypeWorkoutDeleted:
			_, err = tx.Exec(ctx, `DELETE FROM workout_stats WHERE workout_id = $1`, ref.WorkoutID)
		}
		if err != nil {
			return err
		}
		recordStatsChange(msg.EventType, true)
		return nil
	})
}
