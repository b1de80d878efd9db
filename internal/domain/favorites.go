package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"example.com/fittogether/internal/observability"
)

// IsFavorited reports whether the viewer has favorited the workout. A missing
// favorite is false, not an error.
func (s *Service) IsFavorited(ctx context.Context, viewer Viewer, workoutID string) (bool, error) {
	if !viewer.Authenticated() {
		return false, ErrUnauthenticated
	}
	if strings.TrimSpace(workoutID) == "" {
		return false, invalid("workout_id is required")
	}
	fav, err := s.repo.FindFavorite(ctx, viewer.UserID, workoutID)
	if err != nil {
		return false, fmt.Errorf("find favorite: %w", err)
	}
	return fav != nil, nil
}

// ToggleFavorite flips the viewer's favorite and returns the resulting
// state. Adding requires a readable workout; an existing favorite can always
// be removed, even after its workout went private. Nothing is rolled back on
// failure; callers re-query with IsFavorited to resync.
func (s *Service) ToggleFavorite(ctx context.Context, viewer Viewer, workoutID string) (bool, error) {
	if !viewer.Authenticated() {
		return false, ErrUnauthenticated
	}
	if strings.TrimSpace(workoutID) == "" {
		return false, invalid("workout_id is required")
	}
	if _, err := s.GetWorkout(ctx, viewer, workoutID); err != nil {
		if !errors.Is(err, ErrWorkoutNotFound) {
			return false, err
		}
		return s.unfavoriteHidden(ctx, viewer, workoutID)
	}

	state, err := s.toggle(ctx, Favorite{
		ID:        s.newID(),
		UserID:    viewer.UserID,
		WorkoutID: workoutID,
		CreatedAt: s.now(),
	})
	observability.FavoriteToggled(state, err)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", viewer.UserID).Str("workout_id", workoutID).Msg("favorite toggle failed")
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	s.log.Debug().Str("user_id", viewer.UserID).Str("workout_id", workoutID).Bool("favorited", state).Msg("favorite toggled")
	return state, nil
}

// unfavoriteHidden removes the viewer's favorite on a workout they can no
// longer read. Without such a favorite the workout is simply not found.
func (s *Service) unfavoriteHidden(ctx context.Context, viewer Viewer, workoutID string) (bool, error) {
	removed, err := s.repo.DeleteFavorite(ctx, viewer.UserID, workoutID)
	if err != nil {
		observability.FavoriteToggled(false, err)
		s.log.Warn().Err(err).Str("user_id", viewer.UserID).Str("workout_id", workoutID).Msg("favorite removal failed")
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	if !removed {
		return false, ErrWorkoutNotFound
	}
	observability.FavoriteToggled(false, nil)
	s.log.Debug().Str("user_id", viewer.UserID).Str("workout_id", workoutID).Msg("favorite removed from hidden workout")
	return false, nil
}

func (s *Service) toggle(ctx context.Context, fav Favorite) (bool, error) {
	if toggler, ok := s.repo.(FavoriteToggler); ok {
		return toggler.ToggleFavorite(ctx, fav)
	}

	existing, err := s.repo.FindFavorite(ctx, fav.UserID, fav.WorkoutID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		// A concurrent toggle may already have removed the row; either way it is gone.
		if _, err := s.repo.DeleteFavorite(ctx, fav.UserID, fav.WorkoutID); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := s.repo.InsertFavorite(ctx, fav); err != nil {
		if errors.Is(err, ErrDuplicateFavorite) {
			observability.FavoriteConflictResolved()
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// ListFavorites returns the workouts the viewer has favorited, most recently
// favorited first. Workouts that are no longer readable are omitted.
func (s *Service) ListFavorites(ctx context.Context, viewer Viewer, cursor *Cursor, limit int) ([]FavoritedWorkout, *Cursor, error) {
	if !viewer.Authenticated() {
		return nil, nil, ErrUnauthenticated
	}
	favorites, next, err := s.repo.ListFavorites(ctx, viewer.UserID, cursor, clampLimit(limit))
	if err != nil {
		return nil, nil, fmt.Errorf("list favorites: %w", err)
	}
	readable := favorites[:0]
	for _, f := range favorites {
		if CanReadWorkout(viewer, f.Workout) {
			readable = append(readable, f)
		}
	}
	return readable, next, nil
}

// FavoriteStatus resolves the favorite state of several workouts at once.
// Every requested id appears in the result.
func (s *Service) FavoriteStatus(ctx context.Context, viewer Viewer, workoutIDs []string) (map[string]bool, error) {
	if !viewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	status := make(map[string]bool, len(workoutIDs))
	ids := make([]string, 0, len(workoutIDs))
	for _, id := range workoutIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, seen := status[id]; seen {
			continue
		}
		status[id] = false
		ids = append(ids, id)
	}
	if len(ids) > maxListLimit {
		return nil, invalid(fmt.Sprintf("at most %d workout ids may be requested", maxListLimit))
	}
	if len(ids) == 0 {
		return status, nil
	}
	favorited, err := s.repo.FavoritedWorkoutIDs(ctx, viewer.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("favorite status: %w", err)
	}
	for _, id := range favorited {
		if _, requested := status[id]; requested {
			status[id] = true
		}
	}
	return status, nil
}
