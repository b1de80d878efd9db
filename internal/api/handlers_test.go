package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"example.com/fittogether/internal/auth"
	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/identity"
	"example.com/fittogether/internal/persistence/memory"
)

var testAuth = auth.Config{Secret: "api-test-secret", Issuer: "fittogether.test"}

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	workouts := domain.NewService(store, domain.WithLogger(zerolog.Nop()))
	notifier := identity.NewNotifier(zerolog.Nop())
	t.Cleanup(notifier.Subscribe(identity.ProvisionOnSignIn(workouts)))
	ident := identity.NewService(store, auth.NewIssuer(testAuth), notifier,
		identity.WithPasswordCost(bcrypt.MinCost), identity.WithLogger(zerolog.Nop()))

	mux := http.NewServeMux()
	NewHandler(workouts, ident, sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")), WithLogger(zerolog.Nop())).RegisterRoutes(mux)
	return &testServer{t: t, handler: auth.NewMiddleware(testAuth, nil, ident).Wrap(mux)}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) signUp(email string) string {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/v1/auth/signup", "", SignUpRequest{Email: email, Password: "secret123"})
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp AuthResponse
	require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func (s *testServer) createWorkout(token string, req WorkoutRequest) WorkoutView {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/v1/workouts", token, req)
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	var view WorkoutView
	require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &view))
	return view
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	return decodeBody[map[string]string](t, rr)["type"]
}

func TestPrivateWorkoutIsNotFoundForOthers(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("owner@example.com")
	other := s.signUp("other@example.com")
	w := s.createWorkout(owner, WorkoutRequest{Title: "Secret plan"})

	rr := s.do(http.MethodGet, "/v1/workouts/"+w.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = s.do(http.MethodGet, "/v1/workouts/"+w.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodGet, "/v1/workouts/"+w.ID, owner, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decodeBody[WorkoutView](t, rr)
	require.NotNil(t, view.Favorited)
	assert.False(t, *view.Favorited)
	require.NotNil(t, view.OwnerName)
	assert.Equal(t, "owner", *view.OwnerName)
}

func TestToggleFavoriteFlipsState(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("owner@example.com")
	fan := s.signUp("fan@example.com")
	w := s.createWorkout(owner, WorkoutRequest{Title: "Intervals", IsPublic: true})

	rr := s.do(http.MethodPost, "/v1/workouts/"+w.ID+"/favorite", fan, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeBody[FavoriteResponse](t, rr).Favorited)

	rr = s.do(http.MethodGet, "/v1/favorites/status?workout_id="+w.ID+",missing", fan, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decodeBody[FavoriteStatusResponse](t, rr)
	assert.True(t, status.Favorites[w.ID])
	assert.False(t, status.Favorites["missing"])

	rr = s.do(http.MethodGet, "/v1/favorites", fan, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[ListFavoritesResponse](t, rr).Items, 1)

	rr = s.do(http.MethodPost, "/v1/workouts/"+w.ID+"/favorite", fan, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeBody[FavoriteResponse](t, rr).Favorited)

	rr = s.do(http.MethodPost, "/v1/workouts/"+w.ID+"/favorite", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOnlyOwnerMayChangeWorkout(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("owner@example.com")
	other := s.signUp("other@example.com")
	w := s.createWorkout(owner, WorkoutRequest{Title: "Legs", IsPublic: true})

	rr := s.do(http.MethodPut, "/v1/workouts/"+w.ID, other, WorkoutRequest{Title: "Mine now", IsPublic: true})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", errorType(t, rr))

	rr = s.do(http.MethodPost, "/v1/workouts/"+w.ID+"/exercises", other, ExerciseRequest{Name: "Squat"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(http.MethodPut, "/v1/workouts/"+w.ID, owner, WorkoutRequest{Title: "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_failed", errorType(t, rr))

	hard := "hard"
	rr = s.do(http.MethodPut, "/v1/workouts/"+w.ID, owner, WorkoutRequest{Title: "Heavy legs", Difficulty: &hard, IsPublic: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Heavy legs", decodeBody[WorkoutView](t, rr).Title)

	rr = s.do(http.MethodDelete, "/v1/workouts/"+w.ID, other, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = s.do(http.MethodDelete, "/v1/workouts/"+w.ID, owner, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do(http.MethodGet, "/v1/workouts/"+w.ID, owner, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExerciseLifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("owner@example.com")
	w := s.createWorkout(owner, WorkoutRequest{Title: "Push"})
	sets := 3

	rr := s.do(http.MethodPost, "/v1/workouts/"+w.ID+"/exercises", owner, ExerciseRequest{Name: "Bench", Sets: &sets})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ex := decodeBody[ExerciseView](t, rr)

	zero := 0
	rr = s.do(http.MethodPut, "/v1/exercises/"+ex.ID, owner, ExerciseRequest{Name: "Bench", Sets: &zero})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodGet, "/v1/workouts/"+w.ID+"/exercises", owner, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[ListExercisesResponse](t, rr).Items, 1)

	rr = s.do(http.MethodGet, "/v1/exercises/recent?days=1", owner, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	recent := decodeBody[RecentExercisesResponse](t, rr)
	require.Len(t, recent.Items, 1)
	assert.Equal(t, "Push", recent.Items[0].WorkoutTitle)

	rr = s.do(http.MethodDelete, "/v1/exercises/"+ex.ID, owner, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestListWorkoutsScopes(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("owner@example.com")
	s.createWorkout(owner, WorkoutRequest{Title: "Private"})
	s.createWorkout(owner, WorkoutRequest{Title: "Public", IsPublic: true})

	rr := s.do(http.MethodGet, "/v1/workouts?scope=mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodGet, "/v1/workouts", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	public := decodeBody[ListWorkoutsResponse](t, rr)
	require.Len(t, public.Items, 1)
	assert.Nil(t, public.Items[0].Favorited)

	rr = s.do(http.MethodGet, "/v1/workouts?scope=mine&limit=1", owner, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeBody[ListWorkoutsResponse](t, rr)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)

	rr = s.do(http.MethodGet, "/v1/workouts?scope=mine&limit=1&cursor="+page.NextCursor, owner, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[ListWorkoutsResponse](t, rr).Items, 1)

	rr = s.do(http.MethodGet, "/v1/workouts?cursor=not-a-cursor!", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSessionAndSignOut(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("jo@example.com")

	rr := s.do(http.MethodGet, "/v1/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sess := decodeBody[SessionResponse](t, rr)
	assert.Equal(t, "jo@example.com", sess.User.Email)
	require.NotNil(t, sess.Profile)
	assert.Equal(t, "jo", *sess.Profile.FullName)

	rr = s.do(http.MethodPost, "/v1/auth/signin", "", SignInRequest{Email: "jo@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodPost, "/v1/auth/signup", "", SignUpRequest{Email: "jo@example.com", Password: "secret123"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(http.MethodPost, "/v1/auth/signout", token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do(http.MethodGet, "/v1/auth/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestProfileUpdate(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("sam@example.com")
	name := "Sam Lifter"

	rr := s.do(http.MethodPut, "/v1/profile", token, ProfileRequest{FullName: &name})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, name, *decodeBody[ProfileView](t, rr).FullName)

	bad := "not a url"
	rr = s.do(http.MethodPut, "/v1/profile", token, ProfileRequest{AvatarURL: &bad})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodGet, "/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOAuthDisabledIsNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodGet, "/v1/auth/oauth/authorize", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodGet, "/v1/auth/oauth/callback?state=x&code=y", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMalformedBodyIsRejected(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("x@example.com")
	req := httptest.NewRequest(http.MethodPost, "/v1/workouts", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_request", errorType(t, rr))
}

func TestLocalPathRejectsForeignTargets(t *testing.T) {
	assert.Equal(t, "/workouts/1", localPath("/workouts/1"))
	for _, p := range []string{"", "https://evil.example", "//evil.example", `/\evil.example`, "workouts"} {
		assert.Empty(t, localPath(p), p)
	}
}
