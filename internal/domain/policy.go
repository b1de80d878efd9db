package domain

import (
	"context"
	"errors"
)

// The checks below mirror the row-level security policies installed by the
// migrations. The database remains the authoritative boundary; these decide
// what the API exposes and which affordances a client should show.

// CanReadWorkout reports whether the viewer may read the workout.
func CanReadWorkout(v Viewer, w Workout) bool {
	if w.IsPublic {
		return true
	}
	return v.Authenticated() && v.UserID == w.Owner
}

// CanWriteWorkout reports whether the viewer may update or delete the workout.
func CanWriteWorkout(v Viewer, w Workout) bool {
	return v.Authenticated() && v.UserID == w.Owner
}

// WorkoutOwnerResolver finds the owner of a workout as seen by a viewer.
type WorkoutOwnerResolver interface {
	WorkoutOwner(ctx context.Context, viewer Viewer, workoutID string) (string, error)
}

// CanWriteExercise reports whether the viewer may change the exercise. The
// parent workout's owner is resolved first; an invisible parent denies.
func CanWriteExercise(ctx context.Context, v Viewer, e Exercise, resolver WorkoutOwnerResolver) (bool, error) {
	if !v.Authenticated() {
		return false, nil
	}
	owner, err := resolver.WorkoutOwner(ctx, v, e.WorkoutID)
	if err != nil {
		if errors.Is(err, ErrWorkoutNotFound) {
			return false, nil
		}
		return false, err
	}
	return owner == v.UserID, nil
}

func visibleInScope(v Viewer, w Workout, scope ListScope) bool {
	if !CanReadWorkout(v, w) {
		return false
	}
	switch scope {
	case ScopePublic:
		return w.IsPublic
	case ScopeOwned:
		return w.Owner == v.UserID
	default:
		return true
	}
}
