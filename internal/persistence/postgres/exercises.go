package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/fittogether/internal/domain"
)

const exerciseColumns = `e.id, e.workout_id, e.name, e.sets, e.reps, e.notes, e.created_at`

func scanExercise(row scanner, extra ...any) (domain.Exercise, error) {
	var e domain.Exercise
	dest := append([]any{&e.ID, &e.WorkoutID, &e.Name, &e.Sets, &e.Reps, &e.Notes, &e.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Exercise{}, err
	}
	return e, nil
}

// CreateExercise implements domain.ExerciseRepository. Row-level security
// rejects exercises on workouts the viewer does not own.
func (s *Store) CreateExercise(ctx context.Context, viewerID string, e domain.Exercise) error {
	return s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO exercises (id, workout_id, name, sets, reps, notes, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			e.ID, e.WorkoutID, e.Name, e.Sets, e.Reps, e.Notes, e.CreatedAt,
		)
		return err
	})
}

// GetExercise implements domain.ExerciseRepository.
func (s *Store) GetExercise(ctx context.Context, viewerID, exerciseID string) (*domain.Exercise, error) {
	if !validID(exerciseID) {
		return nil, nil
	}
	var found *domain.Exercise
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		e, err := scanExercise(tx.QueryRow(ctx, `SELECT `+exerciseColumns+` FROM exercises e WHERE e.id = $1`, exerciseID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &e
		return nil
	})
	return found, err
}

// UpdateExercise implements domain.ExerciseRepository.
func (s *Store) UpdateExercise(ctx context.Context, viewerID string, e domain.Exercise) (bool, error) {
	if !validID(e.ID) || viewerID == "" {
		return false, nil
	}
	var changed bool
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE exercises e SET name = $2, sets = $3, reps = $4, notes = $5
             FROM workouts w
             WHERE e.id = $1 AND w.id = e.workout_id AND w.owner = $6`,
			e.ID, e.Name, e.Sets, e.Reps, e.Notes, viewerID,
		)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() == 1
		return nil
	})
	return changed, err
}

// DeleteExercise implements domain.ExerciseRepository.
func (s *Store) DeleteExercise(ctx context.Context, viewerID, exerciseID string) (bool, error) {
	if !validID(exerciseID) || viewerID == "" {
		return false, nil
	}
	var deleted bool
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM exercises e USING workouts w
             WHERE e.id = $1 AND w.id = e.workout_id AND w.owner = $2`,
			exerciseID, viewerID,
		)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() == 1
		return nil
	})
	return deleted, err
}

// ListExercises implements domain.ExerciseRepository, oldest first.
func (s *Store) ListExercises(ctx context.Context, viewerID, workoutID string) ([]domain.Exercise, error) {
	out := make([]domain.Exercise, 0)
	if !validID(workoutID) {
		return out, nil
	}
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+exerciseColumns+` FROM exercises e WHERE e.workout_id = $1 ORDER BY e.created_at ASC, e.id ASC`,
			workoutID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanExercise(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// ListRecentExercises implements domain.ExerciseRepository.
func (s *Store) ListRecentExercises(ctx context.Context, viewerID string, since time.Time, limit int) ([]domain.RecentExercise, error) {
	out := make([]domain.RecentExercise, 0)
	if viewerID == "" {
		return out, nil
	}
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+exerciseColumns+`, w.title, w.created_at
             FROM exercises e JOIN workouts w ON w.id = e.workout_id
             WHERE w.owner = $1 AND e.created_at >= $2
             ORDER BY e.created_at DESC, e.id DESC
             LIMIT $3`,
			viewerID, since, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r domain.RecentExercise
			e, err := scanExercise(rows, &r.WorkoutTitle, &r.WorkoutCreatedAt)
			if err != nil {
				return err
			}
			r.Exercise = e
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}
