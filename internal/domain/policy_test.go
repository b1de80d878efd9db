package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanReadWorkout(t *testing.T) {
	owner := Viewer{UserID: "owner"}
	other := Viewer{UserID: "other"}
	private := Workout{Owner: "owner"}
	public := Workout{Owner: "owner", IsPublic: true}

	assert.True(t, CanReadWorkout(owner, private))
	assert.False(t, CanReadWorkout(other, private))
	assert.False(t, CanReadWorkout(Viewer{}, private))
	assert.True(t, CanReadWorkout(Viewer{}, public))
	assert.True(t, CanReadWorkout(other, public))

	// An anonymous viewer never matches an ownerless row.
	assert.False(t, CanReadWorkout(Viewer{}, Workout{}))
}

func TestCanWriteWorkout(t *testing.T) {
	w := Workout{Owner: "owner", IsPublic: true}
	assert.True(t, CanWriteWorkout(Viewer{UserID: "owner"}, w))
	assert.False(t, CanWriteWorkout(Viewer{UserID: "other"}, w))
	assert.False(t, CanWriteWorkout(Viewer{}, Workout{}))
}

type ownerMap map[string]string

func (m ownerMap) WorkoutOwner(_ context.Context, _ Viewer, workoutID string) (string, error) {
	if workoutID == "broken" {
		return "", errors.New("boom")
	}
	owner, ok := m[workoutID]
	if !ok {
		return "", ErrWorkoutNotFound
	}
	return owner, nil
}

func TestCanWriteExercise(t *testing.T) {
	ctx := context.Background()
	owners := ownerMap{"w1": "owner"}

	tests := []struct {
		name    string
		viewer  Viewer
		parent  string
		want    bool
		wantErr bool
	}{
		{name: "parent owner", viewer: Viewer{UserID: "owner"}, parent: "w1", want: true},
		{name: "someone else", viewer: Viewer{UserID: "other"}, parent: "w1"},
		{name: "anonymous", viewer: Viewer{}, parent: "w1"},
		{name: "invisible parent", viewer: Viewer{UserID: "owner"}, parent: "w2"},
		{name: "resolver failure", viewer: Viewer{UserID: "owner"}, parent: "broken", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanWriteExercise(ctx, tt.viewer, Exercise{WorkoutID: tt.parent}, owners)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkoutFilterNormalized(t *testing.T) {
	f := WorkoutFilter{Scope: "bogus", Limit: 1000}.normalized()
	assert.Equal(t, ScopePublic, f.Scope)
	assert.Equal(t, maxListLimit, f.Limit)

	f = WorkoutFilter{Scope: ScopeOwned}.normalized()
	assert.Equal(t, ScopeOwned, f.Scope)
	assert.Equal(t, defaultListLimit, f.Limit)
}
