package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"example.com/fittogether/internal/auth"
	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/identity"
)

const (
	oauthSessionName = "fittogether_oauth"
	oauthStateKey    = "state"
	oauthRedirectKey = "redirect_to"
)

// localPath accepts only same-origin absolute paths as post-login targets.
func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return ""
	}
	return p
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.identity.SignUp(r.Context(), identity.SignUpInput{Email: req.Email, Password: req.Password, FullName: req.FullName})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.identity.SignIn(r.Context(), identity.SignInInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// oauthAuthorize redirects to the provider with a state value remembered in
// a signed cookie.
func (h *Handler) oauthAuthorize(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	target, err := h.identity.AuthorizeURL(state)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	sess, _ := h.cookies.New(r, oauthSessionName)
	sess.Options.MaxAge = 600
	sess.Options.HttpOnly = true
	sess.Options.SameSite = http.SameSiteLaxMode
	sess.Values[oauthStateKey] = state
	if next := localPath(r.URL.Query().Get("redirect_to")); next != "" {
		sess.Values[oauthRedirectKey] = next
	}
	if err := sess.Save(r, w); err != nil {
		h.respondError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	sess, err := h.cookies.Get(r, oauthSessionName)
	if err != nil || sess == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "oauth state mismatch")
		return
	}
	expected, _ := sess.Values[oauthStateKey].(string)
	if expected == "" || expected != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "invalid_request", "oauth state mismatch")
		return
	}
	next, _ := sess.Values[oauthRedirectKey].(string)
	delete(sess.Values, oauthStateKey)
	delete(sess.Values, oauthRedirectKey)
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.identity.CompleteOAuth(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := toAuthResponse(res)
	resp.RedirectTo = next
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, r, domain.ErrUnauthenticated)
		return
	}
	u, sess, err := h.identity.Session(r.Context(), claims.SessionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := SessionResponse{User: toUserView(*u), SessionID: sess.ID, ExpiresAt: sess.ExpiresAt}
	p, err := h.workouts.GetProfile(r.Context(), viewer(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if p != nil {
		view := toProfileView(*p)
		resp.Profile = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, r, domain.ErrUnauthenticated)
		return
	}
	if err := h.identity.SignOut(r.Context(), claims.Subject, claims.SessionID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
