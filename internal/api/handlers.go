// Package api exposes the workout service over HTTP/JSON.
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/fittogether/internal/auth"
	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/identity"
	"example.com/fittogether/internal/persistence"
)

const (
	maxBodyBytes      = 1 << 20
	defaultRecentDays = 7
)

// Handler coordinates HTTP requests with the workout and identity services.
type Handler struct {
	workouts *domain.Service
	identity *identity.Service
	cookies  sessions.Store
	log      zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger overrides the global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.log = logger
	}
}

// NewHandler builds a Handler. cookies holds the short-lived OAuth state.
func NewHandler(workouts *domain.Service, ident *identity.Service, cookies sessions.Store, opts ...Option) *Handler {
	h := &Handler{workouts: workouts, identity: ident, cookies: cookies, log: log.Logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/auth/signup", h.signUp)
	mux.HandleFunc("POST /v1/auth/signin", h.signIn)
	mux.HandleFunc("GET /v1/auth/oauth/authorize", h.oauthAuthorize)
	mux.HandleFunc("GET /v1/auth/oauth/callback", h.oauthCallback)
	mux.HandleFunc("GET /v1/auth/session", h.session)
	mux.HandleFunc("POST /v1/auth/signout", h.signOut)

	mux.HandleFunc("GET /v1/workouts", h.listWorkouts)
	mux.HandleFunc("POST /v1/workouts", h.createWorkout)
	mux.HandleFunc("GET /v1/workouts/{id}", h.getWorkout)
	mux.HandleFunc("PUT /v1/workouts/{id}", h.updateWorkout)
	mux.HandleFunc("DELETE /v1/workouts/{id}", h.deleteWorkout)
	mux.HandleFunc("GET /v1/workouts/{id}/exercises", h.listExercises)
	mux.HandleFunc("POST /v1/workouts/{id}/exercises", h.addExercise)
	mux.HandleFunc("GET /v1/workouts/{id}/favorite", h.favoriteStatus)
	mux.HandleFunc("POST /v1/workouts/{id}/favorite", h.toggleFavorite)

	mux.HandleFunc("GET /v1/exercises/recent", h.recentExercises)
	mux.HandleFunc("PUT /v1/exercises/{id}", h.updateExercise)
	mux.HandleFunc("DELETE /v1/exercises/{id}", h.deleteExercise)

	mux.HandleFunc("GET /v1/favorites", h.listFavorites)
	mux.HandleFunc("GET /v1/favorites/status", h.batchFavoriteStatus)

	mux.HandleFunc("GET /v1/profile", h.getProfile)
	mux.HandleFunc("PUT /v1/profile", h.updateProfile)

	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// viewer is the signed-in user, or the anonymous viewer.
func viewer(r *http.Request) domain.Viewer {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		return domain.Viewer{}
	}
	return domain.Viewer{UserID: claims.Subject, Email: claims.Email}
}

func (h *Handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor, err := persistence.DecodeCursor(q.Get("cursor"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	v := viewer(r)
	items, next, err := h.workouts.ListWorkouts(r.Context(), v, domain.WorkoutFilter{
		Scope:  domain.ListScope(q.Get("scope")),
		Query:  q.Get("q"),
		Cursor: cursor,
		Limit:  intParam(q.Get("limit"), 0),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	favorited := map[string]bool{}
	if v.Authenticated() && len(items) > 0 {
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		if favorited, err = h.workouts.FavoriteStatus(r.Context(), v, ids); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	resp := ListWorkoutsResponse{Items: make([]WorkoutView, 0, len(items)), NextCursor: persistence.EncodeCursor(next)}
	for _, item := range items {
		view := toWorkoutView(item)
		if v.Authenticated() {
			fav := favorited[item.ID]
			view.Favorited = &fav
		}
		resp.Items = append(resp.Items, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createWorkout(w http.ResponseWriter, r *http.Request) {
	var req WorkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.workouts.CreateWorkout(r.Context(), viewer(r), req.input())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkoutView(*created))
}

func (h *Handler) getWorkout(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	found, err := h.workouts.GetWorkout(r.Context(), v, r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	view := toWorkoutView(*found)
	if v.Authenticated() {
		fav, err := h.workouts.IsFavorited(r.Context(), v, found.ID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		view.Favorited = &fav
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) updateWorkout(w http.ResponseWriter, r *http.Request) {
	var req WorkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.workouts.UpdateWorkout(r.Context(), viewer(r), r.PathValue("id"), req.input())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkoutView(*updated))
}

func (h *Handler) deleteWorkout(w http.ResponseWriter, r *http.Request) {
	if err := h.workouts.DeleteWorkout(r.Context(), viewer(r), r.PathValue("id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listExercises(w http.ResponseWriter, r *http.Request) {
	items, err := h.workouts.ListExercises(r.Context(), viewer(r), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := ListExercisesResponse{Items: make([]ExerciseView, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toExerciseView(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) addExercise(w http.ResponseWriter, r *http.Request) {
	var req ExerciseRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.workouts.AddExercise(r.Context(), viewer(r), r.PathValue("id"), req.input())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExerciseView(*created))
}

func (h *Handler) updateExercise(w http.ResponseWriter, r *http.Request) {
	var req ExerciseRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.workouts.UpdateExercise(r.Context(), viewer(r), r.PathValue("id"), req.input())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExerciseView(*updated))
}

func (h *Handler) deleteExercise(w http.ResponseWriter, r *http.Request) {
	if err := h.workouts.DeleteExercise(r.Context(), viewer(r), r.PathValue("id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recentExercises(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := intParam(q.Get("days"), defaultRecentDays)
	items, err := h.workouts.RecentExercises(r.Context(), viewer(r), time.Duration(days)*24*time.Hour, intParam(q.Get("limit"), 0))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := RecentExercisesResponse{Items: make([]RecentExerciseView, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, RecentExerciseView{
			ExerciseView:     toExerciseView(item.Exercise),
			WorkoutTitle:     item.WorkoutTitle,
			WorkoutCreatedAt: item.WorkoutCreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) favoriteStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fav, err := h.workouts.IsFavorited(r.Context(), viewer(r), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FavoriteResponse{WorkoutID: id, Favorited: fav})
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := h.workouts.ToggleFavorite(r.Context(), viewer(r), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FavoriteResponse{WorkoutID: id, Favorited: state})
}

func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor, err := persistence.DecodeCursor(q.Get("cursor"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items, next, err := h.workouts.ListFavorites(r.Context(), viewer(r), cursor, intParam(q.Get("limit"), 0))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := ListFavoritesResponse{Items: make([]FavoritedWorkoutView, 0, len(items)), NextCursor: persistence.EncodeCursor(next)}
	for _, item := range items {
		view := toWorkoutView(item.Workout)
		fav := true
		view.Favorited = &fav
		resp.Items = append(resp.Items, FavoritedWorkoutView{WorkoutView: view, FavoritedAt: item.FavoritedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) batchFavoriteStatus(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, raw := range r.URL.Query()["workout_id"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	status, err := h.workouts.FavoriteStatus(r.Context(), viewer(r), ids)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FavoriteStatusResponse{Favorites: status})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	p, err := h.workouts.GetProfile(r.Context(), v)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, ProfileView{ID: v.UserID})
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(*p))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.workouts.UpdateProfile(r.Context(), viewer(r), domain.ProfileInput{FullName: req.FullName, AvatarURL: req.AvatarURL})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(*p))
}

// intParam parses a positive integer query parameter, falling back to def.
func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
