package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmailTaken is returned when signing up with an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrSessionInvalid is returned for unknown, expired or revoked sessions.
	ErrSessionInvalid = errors.New("session is not valid")
	// ErrUserNotFound is returned when a session points at a user that no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// ProviderPassword marks accounts created through the password sign-up form.
const ProviderPassword = "email"

// User is an account known to the identity component.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Provider        string
	ProviderSubject string
	ProviderName    string
	SignupName      string
	AvatarURL       string
	CreatedAt       time.Time
}

// Session is a signed-in period for a user.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the session can still authenticate requests at t.
func (s Session) Active(t time.Time) bool {
	return s.RevokedAt == nil && t.Before(s.ExpiresAt)
}

// Store persists users and sessions.
type Store interface {
	// CreateUser returns ErrEmailTaken when the email is in use.
	CreateUser(ctx context.Context, u User) error
	// UserByEmail and UserByID return nil, nil when no user matches.
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	// UpsertFederatedUser finds the user by provider subject, then by email,
	// refreshing the provider name and avatar, or creates it. It returns the
	// stored user.
	UpsertFederatedUser(ctx context.Context, u User) (User, error)
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	RevokeSession(ctx context.Context, id string, at time.Time) (bool, error)
}
