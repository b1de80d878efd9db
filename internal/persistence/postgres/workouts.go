package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/events"
)

const workoutSelect = `SELECT w.id, w.owner, w.title, w.description, w.difficulty, w.is_public, w.created_at, w.updated_at,
        p.full_name, COALESCE(st.favorite_count, 0)`

const workoutJoins = `
        LEFT JOIN profiles p ON p.id = w.owner
        LEFT JOIN workout_stats st ON st.workout_id = w.id`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanWorkout(row scanner, extra ...any) (domain.Workout, error) {
	var (
		w          domain.Workout
		difficulty *string
	)
	dest := append([]any{&w.ID, &w.Owner, &w.Title, &w.Description, &difficulty, &w.IsPublic, &w.CreatedAt, &w.UpdatedAt, &w.OwnerName, &w.FavoriteCount}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Workout{}, err
	}
	if difficulty != nil {
		d := domain.Difficulty(*difficulty)
		w.Difficulty = &d
	}
	return w, nil
}

func difficultyArg(d *domain.Difficulty) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

// CreateWorkout implements domain.WorkoutRepository.
func (s *Store) CreateWorkout(ctx context.Context, viewerID string, w domain.Workout) error {
	return s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO workouts (id, owner, title, description, difficulty, is_public, created_at, updated_at)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			w.ID, w.Owner, w.Title, w.Description, difficultyArg(w.Difficulty), w.IsPublic, w.CreatedAt, w.UpdatedAt,
		)
		return err
	})
}

// GetWorkout implements domain.WorkoutRepository.
func (s *Store) GetWorkout(ctx context.Context, viewerID, workoutID string) (*domain.Workout, error) {
	if !validID(workoutID) {
		return nil, nil
	}
	var found *domain.Workout
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		w, err := scanWorkout(tx.QueryRow(ctx, workoutSelect+` FROM workouts w`+workoutJoins+` WHERE w.id = $1`, workoutID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// UpdateWorkout implements domain.WorkoutRepository. Owner and created_at
// are never written.
func (s *Store) UpdateWorkout(ctx context.Context, viewerID string, w domain.Workout) (bool, error) {
	if !validID(w.ID) || viewerID == "" {
		return false, nil
	}
	var changed bool
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE workouts SET title = $3, description = $4, difficulty = $5, is_public = $6, updated_at = $7
             WHERE id = $1 AND owner = $2`,
			w.ID, viewerID, w.Title, w.Description, difficultyArg(w.Difficulty), w.IsPublic, w.UpdatedAt,
		)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() == 1
		return nil
	})
	return changed, err
}

// DeleteWorkout implements domain.WorkoutRepository. Exercises and
// favorites go with it through ON DELETE CASCADE.
func (s *Store) DeleteWorkout(ctx context.Context, viewerID, workoutID string) (bool, error) {
	if !validID(workoutID) || viewerID == "" {
		return false, nil
	}
	var deleted bool
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `DELETE FROM workouts WHERE id = $1 AND owner = $2 RETURNING owner`, workoutID, viewerID).Scan(&owner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		deleted = true
		return s.recordEvent(ctx, tx, workoutID, events.TypeWorkoutDeleted, events.DedupeKey(workoutID, events.TypeWorkoutDeleted), events.WorkoutDeleted{
			WorkoutID:  workoutID,
			OwnerID:    owner,
			OccurredAt: time.Now().UTC(),
		})
	})
	return deleted, err
}

// ListWorkouts implements domain.WorkoutRepository.
func (s *Store) ListWorkouts(ctx context.Context, viewerID string, filter domain.WorkoutFilter) ([]domain.Workout, *domain.Cursor, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch filter.Scope {
	case domain.ScopeOwned:
		if viewerID == "" {
			return []domain.Workout{}, nil, nil
		}
		conds = append(conds, "w.owner = "+arg(viewerID))
	case domain.ScopeDiscover:
		if viewerID != "" {
			conds = append(conds, "(w.is_public OR w.owner = "+arg(viewerID)+")")
		} else {
			conds = append(conds, "w.is_public")
		}
	default:
		conds = append(conds, "w.is_public")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		conds = append(conds, `w.title ILIKE '%' || `+arg(likeEscaper.Replace(q))+` || '%' ESCAPE '\'`)
	}
	if filter.Cursor != nil {
		if !validID(filter.Cursor.ID) {
			return []domain.Workout{}, nil, nil
		}
		conds = append(conds, fmt.Sprintf("(w.created_at, w.id) < (%s, %s)", arg(filter.Cursor.CreatedAt), arg(filter.Cursor.ID)))
	}
	limit := filter.Limit
	query := workoutSelect + ` FROM workouts w` + workoutJoins +
		` WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY w.created_at DESC, w.id DESC LIMIT ` + arg(limit+1)

	results := make([]domain.Workout, 0, limit)
	err := s.inTx(ctx, viewerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			w, err := scanWorkout(rows)
			if err != nil {
				return err
			}
			results = append(results, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) > limit {
		results = results[:limit]
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}
