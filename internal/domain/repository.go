package domain

import (
	"context"
	"time"
)

// Every repository method receives the acting viewer id so the store can
// apply row-level security. An empty viewer id is the anonymous viewer.

// WorkoutRepository persists workouts.
type WorkoutRepository interface {
	CreateWorkout(ctx context.Context, viewerID string, w Workout) error
	// GetWorkout returns nil, nil when the workout is absent or not visible.
	GetWorkout(ctx context.Context, viewerID, workoutID string) (*Workout, error)
	// UpdateWorkout and DeleteWorkout report whether a row owned by the viewer changed.
	UpdateWorkout(ctx context.Context, viewerID string, w Workout) (bool, error)
	DeleteWorkout(ctx context.Context, viewerID, workoutID string) (bool, error)
	ListWorkouts(ctx context.Context, viewerID string, filter WorkoutFilter) ([]Workout, *Cursor, error)
}

// ExerciseRepository persists exercises.
type ExerciseRepository interface {
	CreateExercise(ctx context.Context, viewerID string, e Exercise) error
	GetExercise(ctx context.Context, viewerID, exerciseID string) (*Exercise, error)
	UpdateExercise(ctx context.Context, viewerID string, e Exercise) (bool, error)
	DeleteExercise(ctx context.Context, viewerID, exerciseID string) (bool, error)
	ListExercises(ctx context.Context, viewerID, workoutID string) ([]Exercise, error)
	ListRecentExercises(ctx context.Context, viewerID string, since time.Time, limit int) ([]RecentExercise, error)
}

// FavoriteRepository persists favorites.
type FavoriteRepository interface {
	FindFavorite(ctx context.Context, userID, workoutID string) (*Favorite, error)
	// InsertFavorite returns ErrDuplicateFavorite when the pair already exists.
	InsertFavorite(ctx context.Context, f Favorite) error
	DeleteFavorite(ctx context.Context, userID, workoutID string) (bool, error)
	ListFavorites(ctx context.Context, userID string, cursor *Cursor, limit int) ([]FavoritedWorkout, *Cursor, error)
	FavoritedWorkoutIDs(ctx context.Context, userID string, workoutIDs []string) ([]string, error)
}

// FavoriteToggler is implemented by stores that can flip a favorite in a
// single conditional statement. It returns the resulting state.
type FavoriteToggler interface {
	ToggleFavorite(ctx context.Context, f Favorite) (bool, error)
}

// ProfileRepository persists profiles.
type ProfileRepository interface {
	// GetProfile returns nil, nil when no profile exists.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// ProvisionProfile inserts the profile or, when it exists, refreshes the
	// avatar if one is supplied and the name if refreshName is set. A missing
	// name is always filled in.
	ProvisionProfile(ctx context.Context, p Profile, refreshName bool) error
	// UpdateProfile overwrites the editable fields of an existing profile.
	UpdateProfile(ctx context.Context, p Profile) (bool, error)
}

// Repository aggregates the stores the service depends on.
type Repository interface {
	WorkoutRepository
	ExerciseRepository
	FavoriteRepository
	ProfileRepository
}
