package domain

import "time"

// Difficulty grades a workout.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Viewer is the identity performing an operation. The zero value is anonymous.
type Viewer struct {
	UserID string
	Email  string
}

// Authenticated reports whether the viewer is signed in.
func (v Viewer) Authenticated() bool {
	return v.UserID != ""
}

// Workout is the canonical workout record. Owner never changes after creation.
type Workout struct {
	ID          string
	Owner       string
	Title       string
	Description *string
	Difficulty  *Difficulty
	IsPublic    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Read-only projections joined in by the store.
	OwnerName     *string
	FavoriteCount int
}

// Exercise belongs to exactly one workout and inherits its owner.
type Exercise struct {
	ID        string
	WorkoutID string
	Name      string
	Sets      *int
	Reps      *string
	Notes     *string
	CreatedAt time.Time
}

// RecentExercise is an exercise joined with its parent workout summary.
type RecentExercise struct {
	Exercise
	WorkoutTitle     string
	WorkoutCreatedAt time.Time
}

// Favorite marks a workout as favorited by a user. At most one exists per
// (UserID, WorkoutID).
type Favorite struct {
	ID        string
	UserID    string
	WorkoutID string
	CreatedAt time.Time
}

// FavoritedWorkout is a workout as listed on a user's favorites page.
type FavoritedWorkout struct {
	Workout
	FavoritedAt time.Time
}

// Profile is the public face of a user.
type Profile struct {
	ID        string
	FullName  *string
	AvatarURL *string
	CreatedAt time.Time
}

// Identity carries what the identity provider knows about a signed-in user.
type Identity struct {
	UserID       string
	Email        string
	Provider     string
	ProviderName string // name reported by a federated provider
	SignupName   string // name typed on the sign-up form
	AvatarURL    string
}

// Cursor models the pagination token for lists ordered by creation time.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// ListScope selects one of the workout read postures.
type ListScope string

const (
	// ScopePublic lists public workouts only; anonymous viewers allowed.
	ScopePublic ListScope = "public"
	// ScopeOwned lists the viewer's own workouts, public or private.
	ScopeOwned ListScope = "mine"
	// ScopeDiscover mixes public workouts with the viewer's own for search.
	ScopeDiscover ListScope = "discover"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// WorkoutFilter narrows a workout listing.
type WorkoutFilter struct {
	Scope  ListScope
	Query  string
	Cursor *Cursor
	Limit  int
}

func (f WorkoutFilter) normalized() WorkoutFilter {
	switch f.Scope {
	case ScopePublic, ScopeOwned, ScopeDiscover:
	default:
		f.Scope = ScopePublic
	}
	f.Limit = clampLimit(f.Limit)
	return f
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
