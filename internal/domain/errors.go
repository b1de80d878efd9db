package domain

import (
	"errors"
	"strings"
)

var (
	// ErrWorkoutNotFound is returned when a workout is absent or not visible to the viewer.
	ErrWorkoutNotFound = errors.New("workout not found")
	// ErrExerciseNotFound is returned when an exercise is absent or its workout is not visible.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrForbidden is returned when a viewer may see a row but not change it.
	ErrForbidden = errors.New("operation not permitted for this viewer")
	// ErrUnauthenticated is returned when an operation needs a signed-in viewer.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrDuplicateFavorite is returned by stores when the (user, workout) favorite already exists.
	ErrDuplicateFavorite = errors.New("favorite already exists")
)

// ValidationError reports malformed input rejected before any store call.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func invalid(problems ...string) error {
	return &ValidationError{Problems: problems}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
