package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// SessionValidator confirms that the session behind a token is still live.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) error
}

// Middleware provides HTTP middleware for bearer-token validation. Requests
// without an Authorization header continue anonymously; handlers decide
// whether a viewer is required.
type Middleware struct {
	Config   Config
	Skipper  Skipper
	Sessions SessionValidator
}

// NewMiddleware constructs a middleware with optional skipper and session validator.
func NewMiddleware(cfg Config, skipper Skipper, sessions SessionValidator) Middleware {
	return Middleware{Config: cfg, Skipper: skipper, Sessions: sessions}
}

// Wrap wraps an http.Handler with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseRequest(r)
		if err != nil {
			unauthorized(w, err.Error())
			return
		}
		if m.Sessions != nil {
			if err := m.Sessions.ValidateSession(r.Context(), claims.SessionID); err != nil {
				unauthorized(w, "session is no longer valid")
				return
			}
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return Parse(token, m.Config)
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": detail})
}
