package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/fittogether/internal/identity"
)

// ConstraintError mirrors a foreign key or primary key violation in the
// relational schema.
type ConstraintError struct {
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("violates constraint %q", e.Constraint)
}

// CreateUser implements identity.Store.
func (s *Store) CreateUser(ctx context.Context, u identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, taken := s.emails[email]; taken {
		return identity.ErrEmailTaken
	}
	u.Email = email
	s.users[u.ID] = u
	s.emails[email] = u.ID
	return nil
}

// UserByEmail implements identity.Store.
func (s *Store) UserByEmail(ctx context.Context, email string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	u := s.users[id]
	return &u, nil
}

// UserByID implements identity.Store.
func (s *Store) UserByID(ctx context.Context, id string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// UpsertFederatedUser implements identity.Store.
func (s *Store) UpsertFederatedUser(ctx context.Context, u identity.User) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = strings.ToLower(u.Email)
	var existing *identity.User
	for _, candidate := range s.users {
		if candidate.Provider == u.Provider && candidate.ProviderSubject == u.ProviderSubject {
			c := candidate
			existing = &c
			break
		}
	}
	if existing == nil {
		if id, ok := s.emails[u.Email]; ok {
			c := s.users[id]
			existing = &c
		}
	}
	if existing == nil {
		s.users[u.ID] = u
		s.emails[u.Email] = u.ID
		return u, nil
	}

	if existing.ProviderSubject == "" {
		existing.Provider = u.Provider
		existing.ProviderSubject = u.ProviderSubject
	}
	if u.ProviderName != "" {
		existing.ProviderName = u.ProviderName
	}
	if u.AvatarURL != "" {
		existing.AvatarURL = u.AvatarURL
	}
	s.users[existing.ID] = *existing
	return *existing, nil
}

// CreateSession implements identity.Store.
func (s *Store) CreateSession(ctx context.Context, sess identity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sess.UserID]; !ok {
		return &ConstraintError{Constraint: "sessions_user_id_fkey"}
	}
	s.sessions[sess.ID] = sess
	return nil
}

// GetSession implements identity.Store.
func (s *Store) GetSession(ctx context.Context, id string) (*identity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// RevokeSession implements identity.Store.
func (s *Store) RevokeSession(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return false, nil
	}
	sess.RevokedAt = &at
	s.sessions[id] = sess
	return true, nil
}
