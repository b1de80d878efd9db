package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/observability"
	"example.com/fittogether/internal/persistence/memory"
)

var (
	alice = domain.Viewer{UserID: "alice", Email: "alice@example.com"}
	bob   = domain.Viewer{UserID: "bob", Email: "bob@example.com"}
	anon  = domain.Viewer{}
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newService(t *testing.T, repo domain.Repository) (*domain.Service, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	return domain.NewService(repo, domain.WithClock(clock.Now), domain.WithLogger(zerolog.Nop())), clock
}

func ptr[T any](v T) *T { return &v }

func createWorkout(t *testing.T, svc *domain.Service, owner domain.Viewer, title string, public bool) *domain.Workout {
	t.Helper()
	w, err := svc.CreateWorkout(context.Background(), owner, domain.WorkoutInput{Title: title, IsPublic: public})
	require.NoError(t, err)
	return w
}

func TestToggleFavoriteReflectsState(t *testing.T) {
	store := memory.NewStore()
	svc, _ := newService(t, store)
	ctx := context.Background()
	w := createWorkout(t, svc, alice, "Leg day", true)

	favorited, err := svc.IsFavorited(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.False(t, favorited)

	state, err := svc.ToggleFavorite(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.True(t, state)
	favorited, err = svc.IsFavorited(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.True(t, favorited)

	state, err = svc.ToggleFavorite(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.False(t, state)
	favorited, err = svc.IsFavorited(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.False(t, favorited)
}

func TestToggleFavoriteRequiresReadableWorkout(t *testing.T) {
	svc, _ := newService(t, memory.NewStore())
	ctx := context.Background()
	w := createWorkout(t, svc, alice, "Secret plan", false)

	_, err := svc.ToggleFavorite(ctx, bob, w.ID)
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)

	_, err = svc.ToggleFavorite(ctx, anon, w.ID)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svc.ToggleFavorite(ctx, bob, " ")
	require.True(t, domain.IsValidation(err))

	state, err := svc.ToggleFavorite(ctx, alice, w.ID)
	require.NoError(t, err)
	assert.True(t, state)
}

func TestFavoriteRemovableAfterWorkoutGoesPrivate(t *testing.T) {
	store := memory.NewStore()
	svc, _ := newService(t, store)
	ctx := context.Background()
	w := createWorkout(t, svc, alice, "Hill repeats", true)

	state, err := svc.ToggleFavorite(ctx, bob, w.ID)
	require.NoError(t, err)
	require.True(t, state)

	_, err = svc.UpdateWorkout(ctx, alice, w.ID, domain.WorkoutInput{Title: w.Title, IsPublic: false})
	require.NoError(t, err)

	state, err = svc.ToggleFavorite(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.False(t, state)
	assert.Zero(t, store.FavoriteCount(bob.UserID, w.ID))

	favorited, err := svc.IsFavorited(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.False(t, favorited)

	// With the favorite gone the hidden workout cannot be favorited again.
	_, err = svc.ToggleFavorite(ctx, bob, w.ID)
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)
}

// staleReads hides existing favorites from FindFavorite, reproducing two
// requests that both observed "absent" before inserting.
type staleReads struct {
	*memory.Store
}

func (staleReads) FindFavorite(context.Context, string, string) (*domain.Favorite, error) {
	return nil, nil
}

func TestToggleFavoriteTreatsUniqueConflictAsFavorited(t *testing.T) {
	store := memory.NewStore()
	seed, _ := newService(t, store)
	w := createWorkout(t, seed, alice, "Push", true)
	ctx := context.Background()

	state, err := seed.ToggleFavorite(ctx, bob, w.ID)
	require.NoError(t, err)
	require.True(t, state)

	before := testutil.ToFloat64(observability.FavoriteConflicts)
	svc, _ := newService(t, staleReads{store})
	state, err = svc.ToggleFavorite(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.True(t, state)
	assert.Equal(t, 1, store.FavoriteCount(bob.UserID, w.ID))
	assert.Equal(t, before+1, testutil.ToFloat64(observability.FavoriteConflicts))
}

func TestConcurrentTogglesKeepOneRow(t *testing.T) {
	store := memory.NewStore()
	svc, _ := newService(t, store)
	w := createWorkout(t, svc, alice, "Pull", true)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ToggleFavorite(ctx, bob, w.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	favorited, err := svc.IsFavorited(ctx, bob, w.ID)
	require.NoError(t, err)
	count := store.FavoriteCount(bob.UserID, w.ID)
	assert.LessOrEqual(t, count, 1)
	assert.Equal(t, count == 1, favorited)
}

type togglerRepo struct {
	*memory.Store
	calls int
}

func (r *togglerRepo) ToggleFavorite(_ context.Context, f domain.Favorite) (bool, error) {
	r.calls++
	if _, err := r.Store.DeleteFavorite(context.Background(), f.UserID, f.WorkoutID); err != nil {
		return false, err
	}
	return r.calls%2 == 1, nil
}

func TestToggleFavoritePrefersAtomicStore(t *testing.T) {
	repo := &togglerRepo{Store: memory.NewStore()}
	svc, _ := newService(t, repo)
	w := createWorkout(t, svc, alice, "Core", true)

	state, err := svc.ToggleFavorite(context.Background(), bob, w.ID)
	require.NoError(t, err)
	assert.True(t, state)
	assert.Equal(t, 1, repo.calls)
}

type failingFavorites struct {
	*memory.Store
}

func (failingFavorites) InsertFavorite(context.Context, domain.Favorite) error {
	return errors.New("connection reset")
}

func TestToggleFavoriteSurfacesStoreFailure(t *testing.T) {
	store := memory.NewStore()
	seed, _ := newService(t, store)
	w := createWorkout(t, seed, alice, "Cardio", true)

	failed := testutil.ToFloat64(observability.FavoriteToggles.WithLabelValues("failed"))
	svc, _ := newService(t, failingFavorites{store})
	_, err := svc.ToggleFavorite(context.Background(), bob, w.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, failed+1, testutil.ToFloat64(observability.FavoriteToggles.WithLabelValues("failed")))
}

func TestListFavoritesCarriesFavoritedAt(t *testing.T) {
	store := memory.NewStore()
	svc, _ := newService(t, store)
	ctx := context.Background()
	first := createWorkout(t, svc, alice, "First", true)
	second := createWorkout(t, svc, alice, "Second", true)

	_, err := svc.ToggleFavorite(ctx, bob, first.ID)
	require.NoError(t, err)
	_, err = svc.ToggleFavorite(ctx, bob, second.ID)
	require.NoError(t, err)

	fav, err := store.FindFavorite(ctx, bob.UserID, first.ID)
	require.NoError(t, err)
	require.NotNil(t, fav)

	list, next, err := svc.ListFavorites(ctx, bob, nil, 0)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.True(t, list[1].FavoritedAt.Equal(fav.CreatedAt))
	require.NotNil(t, list[1].OwnerName)
	assert.Equal(t, "alice", *list[1].OwnerName)

	// A workout made private by its owner drops out of other users' lists.
	_, err = svc.UpdateWorkout(ctx, alice, first.ID, domain.WorkoutInput{Title: "First", IsPublic: false})
	require.NoError(t, err)
	list, _, err = svc.ListFavorites(ctx, bob, nil, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestFavoriteStatus(t *testing.T) {
	svc, _ := newService(t, memory.NewStore())
	ctx := context.Background()
	a := createWorkout(t, svc, alice, "A", true)
	b := createWorkout(t, svc, alice, "B", true)
	_, err := svc.ToggleFavorite(ctx, bob, a.ID)
	require.NoError(t, err)

	status, err := svc.FavoriteStatus(ctx, bob, []string{a.ID, b.ID, a.ID, ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{a.ID: true, b.ID: false}, status)

	many := make([]string, 101)
	for i := range many {
		many[i] = fmt.Sprintf("w-%d", i)
	}
	_, err = svc.FavoriteStatus(ctx, bob, many)
	assert.True(t, domain.IsValidation(err))
}

func TestPrivateWorkoutHiddenFromOthers(t *testing.T) {
	svc, _ := newService(t, memory.NewStore())
	ctx := context.Background()
	private := createWorkout(t, svc, alice, "Private", false)
	public := createWorkout(t, svc, alice, "Public", true)

	_, err := svc.GetWorkout(ctx, bob, private.ID)
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)
	_, err = svc.GetWorkout(ctx, anon, private.ID)
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)

	got, err := svc.GetWorkout(ctx, alice, private.ID)
	require.NoError(t, err)
	assert.Equal(t, "Private", got.Title)

	for _, scope := range []domain.ListScope{domain.ScopePublic, domain.ScopeDiscover} {
		for _, viewer := range []domain.Viewer{bob, anon} {
			list, _, err := svc.ListWorkouts(ctx, viewer, domain.WorkoutFilter{Scope: scope})
			require.NoError(t, err)
			require.Len(t, list, 1, "scope %s viewer %q", scope, viewer.UserID)
			assert.Equal(t, public.ID, list[0].ID)
		}
	}

	_, _, err = svc.ListWorkouts(ctx, anon, domain.WorkoutFilter{Scope: domain.ScopeOwned})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestListWorkoutPostures(t *testing.T) {
	svc, _ := newService(t, memory.NewStore())
	ctx := context.Background()
	createWorkout(t, svc, alice, "Alice private", false)
	createWorkout(t, svc, alice, "Alice public", true)
	createWorkout(t, svc, bob, "Bob public", true)
	createWorkout(t, svc, bob, "Bob private", false)

	titles := func(ws []domain.Workout) []string {
		out := make([]string, len(ws))
		for i, w := range ws {
			out[i] = w.Title
		}
		return out
	}

	mine, _, err := svc.ListWorkouts(ctx, alice, domain.WorkoutFilter{Scope: domain.ScopeOwned})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice public", "Alice private"}, titles(mine))

	public, _, err := svc.ListWorkouts(ctx, alice, domain.WorkoutFilter{Scope: domain.ScopePublic})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob public", "Alice public"}, titles(public))

	discover, _, err := svc.ListWorkouts(ctx, alice, domain.WorkoutFilter{Scope: domain.ScopeDiscover, Query: "private"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice private"}, titles(discover))
}

func TestOnlyOwnerMayWriteWorkout(t *testing.T) {
	svc, _ := newService(t, memory.NewStore())
	ctx := context.Background()
	w := createWorkout(t, svc, alice, "Mine", true)
	private := createWorkout(t, svc, alice, "Hidden", false)

	_, err := svc.UpdateWorkout(ctx, bob, w.ID, domain.WorkoutInput{Title: "Stolen"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.ErrorIs(t, svc.DeleteWorkout(ctx, bob, w.ID), domain.ErrForbidden)
	require.ErrorIs(t, svc.DeleteWorkout(ctx, bob, private.ID), domain.ErrWorkoutNotFound)
	require.ErrorIs(t, svc.DeleteWorkout(ctx, anon, w.ID), domain.ErrUnauthenticated)

	updated, err := svc.UpdateWorkout(ctx, alice, w.ID, domain.WorkoutInput{Title: " Renamed ", Difficulty: ptr(domain.DifficultyHard), IsPublic: true})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, alice.UserID, updated.Owner)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	require.NoError(t, svc.DeleteWorkout(ctx, alice, w.ID))
	_, err = svc.GetWorkout(ctx, alice, w.ID)
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)
}

func TestWorkoutValidation(t *testing.T) {
	svc, _ := newService(t, memory.NewStore())
	ctx := context.Background()

	tests := []struct {
		name  string
		input domain.WorkoutInput
		want  string
	}{
		{name: "blank title", input: domain.WorkoutInput{Title: "   "}, want: "title is required"},
		{name: "unknown difficulty", input: domain.WorkoutInput{Title: "x", Difficulty: ptr(domain.Difficulty("extreme"))}, want: "difficulty must be one of: easy, medium, hard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateWorkout(ctx, alice, tt.input)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Problems, tt.want)
		})
	}

	w, err := svc.CreateWorkout(ctx, alice, domain.WorkoutInput{Title: "Ok", Description: ptr("  "), Difficulty: ptr(domain.Difficulty(""))})
	require.NoError(t, err)
	assert.Nil(t, w.Description)
	assert.Nil(t, w.Difficulty)
}

func TestExerciseWritesFollowParentOwner(t *testing.T) {
	svc, _ := newService(t, memory.NewStore())
	ctx := context.Background()
	public := createWorkout(t, svc, alice, "Public", true)
	private := createWorkout(t, svc, alice, "Private", false)

	_, err := svc.AddExercise(ctx, bob, public.ID, domain.ExerciseInput{Name: "Squat"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.AddExercise(ctx, bob, private.ID, domain.ExerciseInput{Name: "Squat"})
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)

	squat, err := svc.AddExercise(ctx, alice, public.ID, domain.ExerciseInput{Name: "Squat", Sets: ptr(3), Reps: ptr("8-10")})
	require.NoError(t, err)
	hidden, err := svc.AddExercise(ctx, alice, private.ID, domain.ExerciseInput{Name: "Lunge"})
	require.NoError(t, err)

	_, err = svc.UpdateExercise(ctx, bob, squat.ID, domain.ExerciseInput{Name: "Renamed"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.ErrorIs(t, svc.DeleteExercise(ctx, bob, hidden.ID), domain.ErrExerciseNotFound)

	allowed, err := domain.CanWriteExercise(ctx, alice, *squat, svc)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = domain.CanWriteExercise(ctx, bob, *squat, svc)
	require.NoError(t, err)
	assert.False(t, allowed)

	updated, err := svc.UpdateExercise(ctx, alice, squat.ID, domain.ExerciseInput{Name: "Front squat", Sets: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, "Front squat", updated.Name)
	assert.Nil(t, updated.Reps)

	_, err = svc.AddExercise(ctx, alice, public.ID, domain.ExerciseInput{Name: "Bad", Sets: ptr(0)})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "sets must be at least 1")

	list, err := svc.ListExercises(ctx, bob, public.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = svc.ListExercises(ctx, bob, private.ID)
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)

	require.NoError(t, svc.DeleteExercise(ctx, alice, squat.ID))
	list, err = svc.ListExercises(ctx, alice, public.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecentExercises(t *testing.T) {
	svc, clock := newService(t, memory.NewStore())
	ctx := context.Background()
	w := createWorkout(t, svc, alice, "Today", false)
	_, err := svc.AddExercise(ctx, alice, w.ID, domain.ExerciseInput{Name: "Old"})
	require.NoError(t, err)

	clock.mu.Lock()
	clock.now = clock.now.Add(8 * 24 * time.Hour)
	clock.mu.Unlock()
	_, err = svc.AddExercise(ctx, alice, w.ID, domain.ExerciseInput{Name: "Fresh"})
	require.NoError(t, err)

	recent, err := svc.RecentExercises(ctx, alice, 0, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Fresh", recent[0].Name)
	assert.Equal(t, "Today", recent[0].WorkoutTitle)

	recent, err = svc.RecentExercises(ctx, bob, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestDeleteWorkoutCascades(t *testing.T) {
	store := memory.NewStore()
	svc, _ := newService(t, store)
	ctx := context.Background()
	w := createWorkout(t, svc, alice, "Doomed", true)
	_, err := svc.AddExercise(ctx, alice, w.ID, domain.ExerciseInput{Name: "Row"})
	require.NoError(t, err)
	_, err = svc.ToggleFavorite(ctx, bob, w.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteWorkout(ctx, alice, w.ID))
	assert.Zero(t, store.ExerciseCount(w.ID))
	favorited, err := svc.IsFavorited(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.False(t, favorited)
}
