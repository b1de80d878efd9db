package api

import (
	"strings"
	"time"

	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/identity"
)

// WorkoutRequest is the payload for creating or replacing a workout.
type WorkoutRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Difficulty  *string `json:"difficulty"`
	IsPublic    bool    `json:"is_public"`
}

func (r WorkoutRequest) input() domain.WorkoutInput {
	in := domain.WorkoutInput{Title: r.Title, Description: r.Description, IsPublic: r.IsPublic}
	if r.Difficulty != nil && strings.TrimSpace(*r.Difficulty) != "" {
		d := domain.Difficulty(strings.ToLower(strings.TrimSpace(*r.Difficulty)))
		in.Difficulty = &d
	}
	return in
}

// ExerciseRequest is the payload for adding or replacing an exercise.
type ExerciseRequest struct {
	Name  string  `json:"name"`
	Sets  *int    `json:"sets"`
	Reps  *string `json:"reps"`
	Notes *string `json:"notes"`
}

func (r ExerciseRequest) input() domain.ExerciseInput {
	return domain.ExerciseInput{Name: r.Name, Sets: r.Sets, Reps: r.Reps, Notes: r.Notes}
}

// ProfileRequest is the payload for PUT /v1/profile.
type ProfileRequest struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

// SignUpRequest is the payload for POST /v1/auth/signup.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// SignInRequest is the payload for POST /v1/auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// WorkoutView is the public representation of a workout. Favorited is only
// present for signed-in viewers.
type WorkoutView struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	OwnerName     *string   `json:"owner_name"`
	Title         string    `json:"title"`
	Description   *string   `json:"description"`
	Difficulty    *string   `json:"difficulty"`
	IsPublic      bool      `json:"is_public"`
	FavoriteCount int       `json:"favorite_count"`
	Favorited     *bool     `json:"favorited,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListWorkoutsResponse packages a page of workouts.
type ListWorkoutsResponse struct {
	Items      []WorkoutView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ExerciseView is the public representation of an exercise.
type ExerciseView struct {
	ID        string    `json:"id"`
	WorkoutID string    `json:"workout_id"`
	Name      string    `json:"name"`
	Sets      *int      `json:"sets"`
	Reps      *string   `json:"reps"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// ListExercisesResponse packages a workout's exercises.
type ListExercisesResponse struct {
	Items []ExerciseView `json:"items"`
}

// RecentExerciseView is an exercise with its workout's title.
type RecentExerciseView struct {
	ExerciseView
	WorkoutTitle     string    `json:"workout_title"`
	WorkoutCreatedAt time.Time `json:"workout_created_at"`
}

// RecentExercisesResponse packages the recent exercise feed.
type RecentExercisesResponse struct {
	Items []RecentExerciseView `json:"items"`
}

// FavoriteResponse reports the favorite state of one workout.
type FavoriteResponse struct {
	WorkoutID string `json:"workout_id"`
	Favorited bool   `json:"favorited"`
}

// FavoritedWorkoutView is a workout with the time it was favorited.
type FavoritedWorkoutView struct {
	WorkoutView
	FavoritedAt time.Time `json:"favorited_at"`
}

// ListFavoritesResponse packages a page of favorites.
type ListFavoritesResponse struct {
	Items      []FavoritedWorkoutView `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// FavoriteStatusResponse maps workout ids to favorite state.
type FavoriteStatusResponse struct {
	Favorites map[string]bool `json:"favorites"`
}

// ProfileView is the viewer's profile.
type ProfileView struct {
	ID        string     `json:"id"`
	FullName  *string    `json:"full_name"`
	AvatarURL *string    `json:"avatar_url"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// UserView describes the signed-in account.
type UserView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
}

// AuthResponse is returned after a successful sign-in.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserView  `json:"user"`

	// RedirectTo echoes the local path requested when federated sign-in began.
	RedirectTo string `json:"redirect_to,omitempty"`
}

// SessionResponse describes the current session.
type SessionResponse struct {
	User      UserView     `json:"user"`
	SessionID string       `json:"session_id"`
	ExpiresAt time.Time    `json:"expires_at"`
	Profile   *ProfileView `json:"profile,omitempty"`
}

func toWorkoutView(w domain.Workout) WorkoutView {
	view := WorkoutView{
		ID:            w.ID,
		Owner:         w.Owner,
		OwnerName:     w.OwnerName,
		Title:         w.Title,
		Description:   w.Description,
		IsPublic:      w.IsPublic,
		FavoriteCount: w.FavoriteCount,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
	if w.Difficulty != nil {
		d := string(*w.Difficulty)
		view.Difficulty = &d
	}
	return view
}

func toExerciseView(e domain.Exercise) ExerciseView {
	return ExerciseView{
		ID:        e.ID,
		WorkoutID: e.WorkoutID,
		Name:      e.Name,
		Sets:      e.Sets,
		Reps:      e.Reps,
		Notes:     e.Notes,
		CreatedAt: e.CreatedAt,
	}
}

func toProfileView(p domain.Profile) ProfileView {
	created := p.CreatedAt
	return ProfileView{ID: p.ID, FullName: p.FullName, AvatarURL: p.AvatarURL, CreatedAt: &created}
}

func toUserView(u identity.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, Provider: u.Provider}
}

func toAuthResponse(res *identity.Result) AuthResponse {
	return AuthResponse{Token: res.Token, ExpiresAt: res.Session.ExpiresAt, User: toUserView(res.User)}
}
