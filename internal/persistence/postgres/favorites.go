package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/events"
)

const (
	favoritesPairKey      = "favorites_user_workout_key"
	insufficientPrivilege = "42501"
	foreignKeyViolation   = "23503"
)

// FindFavorite implements domain.FavoriteRepository.
func (s *Store) FindFavorite(ctx context.Context, userID, workoutID string) (*domain.Favorite, error) {
	if !validID(userID) || !validID(workoutID) {
		return nil, nil
	}
	var found *domain.Favorite
	err := s.inTx(ctx, userID, func(tx pgx.Tx) error {
		var f domain.Favorite
		err := tx.QueryRow(ctx,
			`SELECT id, user_id, workout_id, created_at FROM favorites WHERE user_id = $1 AND workout_id = $2`,
			userID, workoutID,
		).Scan(&f.ID, &f.UserID, &f.WorkoutID, &f.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &f
		return nil
	})
	return found, err
}

// InsertFavorite implements domain.FavoriteRepository. A workout the user
// cannot read is reported as not found.
func (s *Store) InsertFavorite(ctx context.Context, f domain.Favorite) error {
	if !validID(f.WorkoutID) {
		return domain.ErrWorkoutNotFound
	}
	err := s.inTx(ctx, f.UserID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO favorites (id, user_id, workout_id, created_at) VALUES ($1,$2,$3,$4)`,
			f.ID, f.UserID, f.WorkoutID, f.CreatedAt,
		); err != nil {
			return err
		}
		return s.recordFavorite(ctx, tx, f, true)
	})
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, favoritesPairKey):
		return domain.ErrDuplicateFavorite
	case hasCode(err, insufficientPrivilege, foreignKeyViolation):
		return domain.ErrWorkoutNotFound
	}
	return err
}

// DeleteFavorite implements domain.FavoriteRepository.
func (s *Store) DeleteFavorite(ctx context.Context, userID, workoutID string) (bool, error) {
	if !validID(userID) || !validID(workoutID) {
		return false, nil
	}
	var deleted bool
	err := s.inTx(ctx, userID, func(tx pgx.Tx) error {
		f := domain.Favorite{UserID: userID, WorkoutID: workoutID, CreatedAt: time.Now().UTC()}
		err := tx.QueryRow(ctx,
			`DELETE FROM favorites WHERE user_id = $1 AND workout_id = $2 RETURNING id`,
			userID, workoutID,
		).Scan(&f.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		deleted = true
		return s.recordFavorite(ctx, tx, f, false)
	})
	return deleted, err
}

// ToggleFavorite flips the favorite in one statement. When a concurrent
// toggle inserted the same pair first, the pair exists and the result is
// favorited without a second event.
func (s *Store) ToggleFavorite(ctx context.Context, f domain.Favorite) (bool, error) {
	if !validID(f.WorkoutID) {
		return false, domain.ErrWorkoutNotFound
	}
	var state bool
	err := s.inTx(ctx, f.UserID, func(tx pgx.Tx) error {
		var removed, inserted *string
		err := tx.QueryRow(ctx,
			`WITH removed AS (
                 DELETE FROM favorites WHERE user_id = $1 AND workout_id = $2 RETURNING id
             ), inserted AS (
                 INSERT INTO favorites (id, user_id, workout_id, created_at)
                 SELECT $3, $1, $2, $4 WHERE NOT EXISTS (SELECT 1 FROM removed)
                 ON CONFLICT (user_id, workout_id) DO NOTHING
                 RETURNING id
             )
             SELECT (SELECT id FROM removed LIMIT 1), (SELECT id FROM inserted LIMIT 1)`,
			f.UserID, f.WorkoutID, f.ID, f.CreatedAt,
		).Scan(&removed, &inserted)
		if err != nil {
			return err
		}
		switch {
		case removed != nil:
			state = false
			gone := f
			gone.ID = *removed
			return s.recordFavorite(ctx, tx, gone, false)
		case inserted != nil:
			state = true
			return s.recordFavorite(ctx, tx, f, true)
		default:
			state = true
			return nil
		}
	})
	if err != nil {
		if hasCode(err, insufficientPrivilege, foreignKeyViolation) {
			return false, domain.ErrWorkoutNotFound
		}
		return false, err
	}
	return state, nil
}

func (s *Store) recordFavorite(ctx context.Context, tx pgx.Tx, f domain.Favorite, added bool) error {
	if added {
		return s.recordEvent(ctx, tx, f.WorkoutID, events.TypeFavoriteAdded, events.DedupeKey(f.ID, events.TypeFavoriteAdded), events.FavoriteAdded{
			FavoriteID: f.ID,
			UserID:     f.UserID,
			WorkoutID:  f.WorkoutID,
			OccurredAt: f.CreatedAt,
		})
	}
	return s.recordEvent(ctx, tx, f.WorkoutID, events.TypeFavoriteRemoved, events.DedupeKey(f.ID, events.TypeFavoriteRemoved), events.FavoriteRemoved{
		FavoriteID: f.ID,
		UserID:     f.UserID,
		WorkoutID:  f.WorkoutID,
		OccurredAt: f.CreatedAt,
	})
}

// ListFavorites implements domain.FavoriteRepository, newest favorite
// first. The cursor is the favorite's creation time and id.
func (s *Store) ListFavorites(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.FavoritedWorkout, *domain.Cursor, error) {
	out := make([]domain.FavoritedWorkout, 0)
	if !validID(userID) || (cursor != nil && !validID(cursor.ID)) {
		return out, nil, nil
	}
	args := []any{userID}
	query := workoutSelect + `, f.created_at, f.id
        FROM favorites f JOIN workouts w ON w.id = f.workout_id` + workoutJoins + `
        WHERE f.user_id = $1`
	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.ID)
		query += ` AND (f.created_at, f.id) < ($2, $3)`
	}
	args = append(args, limit+1)
	query += ` ORDER BY f.created_at DESC, f.id DESC LIMIT ` + fmt.Sprintf("$%d", len(args))

	var favoriteIDs []string
	err := s.inTx(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				fw         domain.FavoritedWorkout
				favoriteID string
			)
			w, err := scanWorkout(rows, &fw.FavoritedAt, &favoriteID)
			if err != nil {
				return err
			}
			fw.Workout = w
			out = append(out, fw)
			favoriteIDs = append(favoriteIDs, favoriteID)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(out) > limit {
		out = out[:limit]
		next = &domain.Cursor{CreatedAt: out[limit-1].FavoritedAt, ID: favoriteIDs[limit-1]}
	}
	return out, next, nil
}

// FavoritedWorkoutIDs implements domain.FavoriteRepository.
func (s *Store) FavoritedWorkoutIDs(ctx context.Context, userID string, workoutIDs []string) ([]string, error) {
	out := make([]string, 0, len(workoutIDs))
	ids := make([]string, 0, len(workoutIDs))
	for _, id := range workoutIDs {
		if validID(id) {
			ids = append(ids, id)
		}
	}
	if !validID(userID) || len(ids) == 0 {
		return out, nil
	}
	err := s.inTx(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT workout_id FROM favorites WHERE user_id = $1 AND workout_id = ANY($2::uuid[])`,
			userID, ids,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	return out, err
}

func hasCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, code := range codes {
		if pgErr.Code == code {
			return true
		}
	}
	return false
}
