package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/fittogether/internal/observability"
)

const (
	defaultRecentWindow = 7 * 24 * time.Hour
	defaultRecentLimit  = 20
)

// CreateWorkout stores a new workout owned by the viewer. The owner's profile
// is provisioned first when absent.
func (s *Service) CreateWorkout(ctx context.Context, viewer Viewer, input WorkoutInput) (*Workout, error) {
	if !viewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	input = input.normalized()
	if err := s.check(input); err != nil {
		return nil, err
	}
	if err := s.ensureProfile(ctx, viewer); err != nil {
		return nil, err
	}

	now := s.now()
	w := Workout{
		ID:          s.newID(),
		Owner:       viewer.UserID,
		Title:       input.Title,
		Description: input.Description,
		Difficulty:  input.Difficulty,
		IsPublic:    input.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateWorkout(ctx, viewer.UserID, w); err != nil {
		return nil, fmt.Errorf("create workout: %w", err)
	}
	observability.RecordWorkoutWrite(now)
	return &w, nil
}

// GetWorkout returns a workout the viewer may read. Private workouts of other
// users are indistinguishable from absent ones.
func (s *Service) GetWorkout(ctx context.Context, viewer Viewer, workoutID string) (*Workout, error) {
	if strings.TrimSpace(workoutID) == "" {
		return nil, ErrWorkoutNotFound
	}
	w, err := s.repo.GetWorkout(ctx, viewer.UserID, workoutID)
	if err != nil {
		return nil, fmt.Errorf("get workout: %w", err)
	}
	if w == nil || !CanReadWorkout(viewer, *w) {
		return nil, ErrWorkoutNotFound
	}
	return w, nil
}

// WorkoutOwner resolves the owner of a workout visible to the viewer.
func (s *Service) WorkoutOwner(ctx context.Context, viewer Viewer, workoutID string) (string, error) {
	w, err := s.GetWorkout(ctx, viewer, workoutID)
	if err != nil {
		return "", err
	}
	return w.Owner, nil
}

// UpdateWorkout replaces the editable fields of a workout owned by the viewer.
func (s *Service) UpdateWorkout(ctx context.Context, viewer Viewer, workoutID string, input WorkoutInput) (*Workout, error) {
	if !viewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	input = input.normalized()
	if err := s.check(input); err != nil {
		return nil, err
	}
	current, err := s.GetWorkout(ctx, viewer, workoutID)
	if err != nil {
		return nil, err
	}
	if !CanWriteWorkout(viewer, *current) {
		return nil, ErrForbidden
	}

	updated := *current
	updated.Title = input.Title
	updated.Description = input.Description
	updated.Difficulty = input.Difficulty
	updated.IsPublic = input.IsPublic
	updated.UpdatedAt = s.now()

	changed, err := s.repo.UpdateWorkout(ctx, viewer.UserID, updated)
	if err != nil {
		return nil, fmt.Errorf("update workout: %w", err)
	}
	if !changed {
		return nil, ErrWorkoutNotFound
	}
	observability.RecordWorkoutWrite(updated.UpdatedAt)
	return &updated, nil
}

// DeleteWorkout removes a workout owned by the viewer along with its
// exercises and favorites.
func (s *Service) DeleteWorkout(ctx context.Context, viewer Viewer, workoutID string) error {
	if !viewer.Authenticated() {
		return ErrUnauthenticated
	}
	current, err := s.GetWorkout(ctx, viewer, workoutID)
	if err != nil {
		return err
	}
	if !CanWriteWorkout(viewer, *current) {
		return ErrForbidden
	}
	deleted, err := s.repo.DeleteWorkout(ctx, viewer.UserID, workoutID)
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}
	if !deleted {
		return ErrWorkoutNotFound
	}
	return nil
}

// ListWorkouts returns one page of workouts for the requested read posture,
// newest first.
func (s *Service) ListWorkouts(ctx context.Context, viewer Viewer, filter WorkoutFilter) ([]Workout, *Cursor, error) {
	filter = filter.normalized()
	filter.Query = strings.TrimSpace(filter.Query)
	if !viewer.Authenticated() {
		switch filter.Scope {
		case ScopeOwned:
			return nil, nil, ErrUnauthenticated
		case ScopeDiscover:
			filter.Scope = ScopePublic
		}
	}

	workouts, next, err := s.repo.ListWorkouts(ctx, viewer.UserID, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list workouts: %w", err)
	}
	visible := workouts[:0]
	for _, w := range workouts {
		if visibleInScope(viewer, w, filter.Scope) {
			visible = append(visible, w)
		}
	}
	return visible, next, nil
}

// AddExercise attaches an exercise to a workout owned by the viewer.
func (s *Service) AddExercise(ctx context.Context, viewer Viewer, workoutID string, input ExerciseInput) (*Exercise, error) {
	if !viewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	input = input.normalized()
	if err := s.check(input); err != nil {
		return nil, err
	}
	parent, err := s.GetWorkout(ctx, viewer, workoutID)
	if err != nil {
		return nil, err
	}
	if !CanWriteWorkout(viewer, *parent) {
		return nil, ErrForbidden
	}

	e := Exercise{
		ID:        s.newID(),
		WorkoutID: parent.ID,
		Name:      input.Name,
		Sets:      input.Sets,
		Reps:      input.Reps,
		Notes:     input.Notes,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateExercise(ctx, viewer.UserID, e); err != nil {
		return nil, fmt.Errorf("create exercise: %w", err)
	}
	return &e, nil
}

// UpdateExercise replaces the editable fields of an exercise whose parent
// workout the viewer owns.
func (s *Service) UpdateExercise(ctx context.Context, viewer Viewer, exerciseID string, input ExerciseInput) (*Exercise, error) {
	if !viewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	input = input.normalized()
	if err := s.check(input); err != nil {
		return nil, err
	}
	current, err := s.writableExercise(ctx, viewer, exerciseID)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.Name = input.Name
	updated.Sets = input.Sets
	updated.Reps = input.Reps
	updated.Notes = input.Notes
	changed, err := s.repo.UpdateExercise(ctx, viewer.UserID, updated)
	if err != nil {
		return nil, fmt.Errorf("update exercise: %w", err)
	}
	if !changed {
		return nil, ErrExerciseNotFound
	}
	return &updated, nil
}

// DeleteExercise removes an exercise whose parent workout the viewer owns.
func (s *Service) DeleteExercise(ctx context.Context, viewer Viewer, exerciseID string) error {
	if !viewer.Authenticated() {
		return ErrUnauthenticated
	}
	if _, err := s.writableExercise(ctx, viewer, exerciseID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteExercise(ctx, viewer.UserID, exerciseID)
	if err != nil {
		return fmt.Errorf("delete exercise: %w", err)
	}
	if !deleted {
		return ErrExerciseNotFound
	}
	return nil
}

func (s *Service) writableExercise(ctx context.Context, viewer Viewer, exerciseID string) (*Exercise, error) {
	if strings.TrimSpace(exerciseID) == "" {
		return nil, ErrExerciseNotFound
	}
	e, err := s.repo.GetExercise(ctx, viewer.UserID, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("get exercise: %w", err)
	}
	if e == nil {
		return nil, ErrExerciseNotFound
	}
	allowed, err := CanWriteExercise(ctx, viewer, *e, s)
	if err != nil {
		return nil, err
	}
	if !allowed {
		// An exercise under an invisible workout must not leak its existence.
		if _, err := s.GetWorkout(ctx, viewer, e.WorkoutID); err != nil {
			return nil, ErrExerciseNotFound
		}
		return nil, ErrForbidden
	}
	return e, nil
}

// ListExercises returns the exercises of a readable workout, oldest first.
func (s *Service) ListExercises(ctx context.Context, viewer Viewer, workoutID string) ([]Exercise, error) {
	if _, err := s.GetWorkout(ctx, viewer, workoutID); err != nil {
		return nil, err
	}
	exercises, err := s.repo.ListExercises(ctx, viewer.UserID, workoutID)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	return exercises, nil
}

// RecentExercises returns the viewer's exercises created within window,
// newest first, each with its workout title. Zero values select a seven day
// window and twenty rows.
func (s *Service) RecentExercises(ctx context.Context, viewer Viewer, window time.Duration, limit int) ([]RecentExercise, error) {
	if !viewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if window <= 0 {
		window = defaultRecentWindow
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = clampLimit(limit)
	since := s.now().Add(-window)
	recent, err := s.repo.ListRecentExercises(ctx, viewer.UserID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent exercises: %w", err)
	}
	return recent, nil
}
