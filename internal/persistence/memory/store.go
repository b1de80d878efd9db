// Package memory provides a mutex-guarded in-memory implementation of every
// store, used for local development and as the unit-test fake.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/identity"
	"example.com/fittogether/internal/persistence"
)

// Store keeps all rows in maps. Visibility follows the same rules the
// PostgreSQL row-level security policies apply.
type Store struct {
	mu        sync.RWMutex
	profiles  map[string]domain.Profile
	workouts  map[string]domain.Workout
	exercises map[string]domain.Exercise
	favorites map[string]domain.Favorite // keyed by favoriteKey
	users     map[string]identity.User
	emails    map[string]string // lower-cased email -> user id
	sessions  map[string]identity.Session
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		profiles:  make(map[string]domain.Profile),
		workouts:  make(map[string]domain.Workout),
		exercises: make(map[string]domain.Exercise),
		favorites: make(map[string]domain.Favorite),
		users:     make(map[string]identity.User),
		emails:    make(map[string]string),
		sessions:  make(map[string]identity.Session),
	}
}

func favoriteKey(userID, workoutID string) string {
	return userID + "/" + workoutID
}

func visible(viewerID string, w domain.Workout) bool {
	return w.IsPublic || (viewerID != "" && w.Owner == viewerID)
}

// decorate fills the read-only projections. Callers hold the lock.
func (s *Store) decorate(w domain.Workout) domain.Workout {
	if p, ok := s.profiles[w.Owner]; ok && p.FullName != nil {
		name := *p.FullName
		w.OwnerName = &name
	} else {
		w.OwnerName = nil
	}
	count := 0
	for _, f := range s.favorites {
		if f.WorkoutID == w.ID {
			count++
		}
	}
	w.FavoriteCount = count
	return w
}

// CreateWorkout implements domain.WorkoutRepository.
func (s *Store) CreateWorkout(ctx context.Context, viewerID string, w domain.Workout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if viewerID == "" || w.Owner != viewerID {
		return domain.ErrForbidden
	}
	if _, ok := s.profiles[w.Owner]; !ok {
		return &ConstraintError{Constraint: "workouts_owner_fkey"}
	}
	if _, exists := s.workouts[w.ID]; exists {
		return &ConstraintError{Constraint: "workouts_pkey"}
	}
	w.OwnerName = nil
	w.FavoriteCount = 0
	s.workouts[w.ID] = w
	return nil
}

// GetWorkout implements domain.WorkoutRepository.
func (s *Store) GetWorkout(ctx context.Context, viewerID, workoutID string) (*domain.Workout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workouts[workoutID]
	if !ok || !visible(viewerID, w) {
		return nil, nil
	}
	w = s.decorate(w)
	return &w, nil
}

// UpdateWorkout implements domain.WorkoutRepository. Owner and creation
// time are never changed.
func (s *Store) UpdateWorkout(ctx context.Context, viewerID string, w domain.Workout) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.workouts[w.ID]
	if !ok || viewerID == "" || current.Owner != viewerID {
		return false, nil
	}
	current.Title = w.Title
	current.Description = w.Description
	current.Difficulty = w.Difficulty
	current.IsPublic = w.IsPublic
	current.UpdatedAt = w.UpdatedAt
	s.workouts[w.ID] = current
	return true, nil
}

// DeleteWorkout implements domain.WorkoutRepository and cascades to the
// workout's exercises and favorites.
func (s *Store) DeleteWorkout(ctx context.Context, viewerID, workoutID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.workouts[workoutID]
	if !ok || viewerID == "" || current.Owner != viewerID {
		return false, nil
	}
	delete(s.workouts, workoutID)
	for id, e := range s.exercises {
		if e.WorkoutID == workoutID {
			delete(s.exercises, id)
		}
	}
	for key, f := range s.favorites {
		if f.WorkoutID == workoutID {
			delete(s.favorites, key)
		}
	}
	return true, nil
}

// ListWorkouts implements domain.WorkoutRepository.
func (s *Store) ListWorkouts(ctx context.Context, viewerID string, filter domain.WorkoutFilter) ([]domain.Workout, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]domain.Workout, 0)
	for _, w := range s.workouts {
		if !visible(viewerID, w) {
			continue
		}
		switch filter.Scope {
		case domain.ScopeOwned:
			if w.Owner != viewerID {
				continue
			}
		case domain.ScopePublic:
			if !w.IsPublic {
				continue
			}
		}
		if query != "" && !strings.Contains(strings.ToLower(w.Title), query) {
			continue
		}
		if !persistence.Before(filter.Cursor, w.CreatedAt, w.ID) {
			continue
		}
		matched = append(matched, s.decorate(w))
	}
	sortNewestFirst(matched, func(w domain.Workout) (time.Time, string) { return w.CreatedAt, w.ID })
	return page(matched, filter.Limit, func(w domain.Workout) domain.Cursor {
		return domain.Cursor{CreatedAt: w.CreatedAt, ID: w.ID}
	})
}

// CreateExercise implements domain.ExerciseRepository.
func (s *Store) CreateExercise(ctx context.Context, viewerID string, e domain.Exercise) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.workouts[e.WorkoutID]
	if !ok {
		return &ConstraintError{Constraint: "exercises_workout_id_fkey"}
	}
	if viewerID == "" || parent.Owner != viewerID {
		return domain.ErrForbidden
	}
	s.exercises[e.ID] = e
	return nil
}

// GetExercise implements domain.ExerciseRepository. An exercise is visible
// when its workout is.
func (s *Store) GetExercise(ctx context.Context, viewerID, exerciseID string) (*domain.Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exercises[exerciseID]
	if !ok {
		return nil, nil
	}
	parent, ok := s.workouts[e.WorkoutID]
	if !ok || !visible(viewerID, parent) {
		return nil, nil
	}
	return &e, nil
}

// UpdateExercise implements domain.ExerciseRepository.
func (s *Store) UpdateExercise(ctx context.Context, viewerID string, e domain.Exercise) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.exercises[e.ID]
	if !ok || !s.ownsWorkout(viewerID, current.WorkoutID) {
		return false, nil
	}
	current.Name = e.Name
	current.Sets = e.Sets
	current.Reps = e.Reps
	current.Notes = e.Notes
	s.exercises[e.ID] = current
	return true, nil
}

// DeleteExercise implements domain.ExerciseRepository.
func (s *Store) DeleteExercise(ctx context.Context, viewerID, exerciseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.exercises[exerciseID]
	if !ok || !s.ownsWorkout(viewerID, current.WorkoutID) {
		return false, nil
	}
	delete(s.exercises, exerciseID)
	return true, nil
}

func (s *Store) ownsWorkout(viewerID, workoutID string) bool {
	w, ok := s.workouts[workoutID]
	return ok && viewerID != "" && w.Owner == viewerID
}

// ListExercises implements domain.ExerciseRepository, oldest first.
func (s *Store) ListExercises(ctx context.Context, viewerID, workoutID string) ([]domain.Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parent, ok := s.workouts[workoutID]
	if !ok || !visible(viewerID, parent) {
		return []domain.Exercise{}, nil
	}
	out := make([]domain.Exercise, 0)
	for _, e := range s.exercises {
		if e.WorkoutID == workoutID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListRecentExercises implements domain.ExerciseRepository.
func (s *Store) ListRecentExercises(ctx context.Context, viewerID string, since time.Time, limit int) ([]domain.RecentExercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RecentExercise, 0)
	if viewerID == "" {
		return out, nil
	}
	for _, e := range s.exercises {
		parent, ok := s.workouts[e.WorkoutID]
		if !ok || parent.Owner != viewerID || e.CreatedAt.Before(since) {
			continue
		}
		out = append(out, domain.RecentExercise{Exercise: e, WorkoutTitle: parent.Title, WorkoutCreatedAt: parent.CreatedAt})
	}
	sortNewestFirst(out, func(r domain.RecentExercise) (time.Time, string) { return r.CreatedAt, r.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindFavorite implements domain.FavoriteRepository.
func (s *Store) FindFavorite(ctx context.Context, userID, workoutID string) (*domain.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.favorites[favoriteKey(userID, workoutID)]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// InsertFavorite implements domain.FavoriteRepository and enforces the
// (user, workout) uniqueness constraint.
func (s *Store) InsertFavorite(ctx context.Context, f domain.Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workouts[f.WorkoutID]
	if !ok || !visible(f.UserID, w) {
		return domain.ErrWorkoutNotFound
	}
	key := favoriteKey(f.UserID, f.WorkoutID)
	if _, exists := s.favorites[key]; exists {
		return domain.ErrDuplicateFavorite
	}
	s.favorites[key] = f
	return nil
}

// DeleteFavorite implements domain.FavoriteRepository.
func (s *Store) DeleteFavorite(ctx context.Context, userID, workoutID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := favoriteKey(userID, workoutID)
	if _, ok := s.favorites[key]; !ok {
		return false, nil
	}
	delete(s.favorites, key)
	return true, nil
}

// ListFavorites implements domain.FavoriteRepository, most recently
// favorited first.
func (s *Store) ListFavorites(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.FavoritedWorkout, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FavoritedWorkout, 0)
	ids := make(map[string]string) // workout id -> favorite id, for paging
	for _, f := range s.favorites {
		if f.UserID != userID {
			continue
		}
		w, ok := s.workouts[f.WorkoutID]
		if !ok || !visible(userID, w) {
			continue
		}
		if !persistence.Before(cursor, f.CreatedAt, f.ID) {
			continue
		}
		ids[w.ID] = f.ID
		out = append(out, domain.FavoritedWorkout{Workout: s.decorate(w), FavoritedAt: f.CreatedAt})
	}
	key := func(fw domain.FavoritedWorkout) (time.Time, string) { return fw.FavoritedAt, ids[fw.ID] }
	sortNewestFirst(out, key)
	return page(out, limit, func(fw domain.FavoritedWorkout) domain.Cursor {
		at, id := key(fw)
		return domain.Cursor{CreatedAt: at, ID: id}
	})
}

// FavoritedWorkoutIDs implements domain.FavoriteRepository.
func (s *Store) FavoritedWorkoutIDs(ctx context.Context, userID string, workoutIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(workoutIDs))
	for _, id := range workoutIDs {
		if _, ok := s.favorites[favoriteKey(userID, id)]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// GetProfile implements domain.ProfileRepository.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ProvisionProfile implements domain.ProfileRepository.
func (s *Store) ProvisionProfile(ctx context.Context, p domain.Profile, refreshName bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[p.ID]
	if !ok {
		s.profiles[p.ID] = p
		return nil
	}
	if p.AvatarURL != nil {
		current.AvatarURL = p.AvatarURL
	}
	if refreshName || current.FullName == nil {
		current.FullName = p.FullName
	}
	s.profiles[p.ID] = current
	return nil
}

// UpdateProfile implements domain.ProfileRepository.
func (s *Store) UpdateProfile(ctx context.Context, p domain.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[p.ID]
	if !ok {
		return false, nil
	}
	current.FullName = p.FullName
	current.AvatarURL = p.AvatarURL
	s.profiles[p.ID] = current
	return true, nil
}

// ProfileCount returns how many profiles exist.
func (s *Store) ProfileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// FavoriteCount returns how many favorites exist for the pair.
func (s *Store) FavoriteCount(userID, workoutID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.favorites[favoriteKey(userID, workoutID)]; ok {
		return 1
	}
	return 0
}

// ExerciseCount returns how many exercises reference the workout.
func (s *Store) ExerciseCount(workoutID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.exercises {
		if e.WorkoutID == workoutID {
			count++
		}
	}
	return count
}

func sortNewestFirst[T any](rows []T, key func(T) (time.Time, string)) {
	sort.Slice(rows, func(i, j int) bool {
		ti, idi := key(rows[i])
		tj, idj := key(rows[j])
		if ti.Equal(tj) {
			return idi > idj
		}
		return ti.After(tj)
	})
}

func page[T any](rows []T, limit int, cursorOf func(T) domain.Cursor) ([]T, *domain.Cursor, error) {
	if limit <= 0 || len(rows) <= limit {
		return rows, nil, nil
	}
	rows = rows[:limit]
	next := cursorOf(rows[len(rows)-1])
	return rows, &next, nil
}
