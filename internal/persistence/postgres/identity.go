package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/fittogether/internal/identity"
)

const userColumns = `id, email, COALESCE(password_hash, ''), provider, COALESCE(provider_subject, ''),
        COALESCE(provider_name, ''), COALESCE(signup_name, ''), COALESCE(avatar_url, ''), created_at`

func scanUser(row scanner) (identity.User, error) {
	var u identity.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Provider, &u.ProviderSubject,
		&u.ProviderName, &u.SignupName, &u.AvatarURL, &u.CreatedAt)
	return u, err
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (*identity.User, error) {
	var found *identity.User
	err := s.inTx(ctx, "", func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &u
		return nil
	})
	return found, err
}

func insertUser(ctx context.Context, tx pgx.Tx, u identity.User) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, provider, provider_subject, provider_name, signup_name, avatar_url, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Email, nullIfEmpty(u.PasswordHash), u.Provider, nullIfEmpty(u.ProviderSubject),
		nullIfEmpty(u.ProviderName), nullIfEmpty(u.SignupName), nullIfEmpty(u.AvatarURL), u.CreatedAt,
	)
	return err
}

// CreateUser implements identity.Store.
func (s *Store) CreateUser(ctx context.Context, u identity.User) error {
	u.Email = strings.ToLower(u.Email)
	err := s.inTx(ctx, "", func(tx pgx.Tx) error {
		return insertUser(ctx, tx, u)
	})
	if isUniqueViolation(err, "users_email_key") {
		return identity.ErrEmailTaken
	}
	return err
}

// UserByEmail implements identity.Store.
func (s *Store) UserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.userWhere(ctx, "email = $1", strings.ToLower(email))
}

// UserByID implements identity.Store.
func (s *Store) UserByID(ctx context.Context, id string) (*identity.User, error) {
	if !validID(id) {
		return nil, nil
	}
	return s.userWhere(ctx, "id = $1", id)
}

// UpsertFederatedUser implements identity.Store. A user matched by email
// that has no provider subject yet is linked to this provider.
func (s *Store) UpsertFederatedUser(ctx context.Context, u identity.User) (identity.User, error) {
	u.Email = strings.ToLower(u.Email)
	var stored identity.User
	err := s.inTx(ctx, "", func(tx pgx.Tx) error {
		existing, err := scanUser(tx.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users
             WHERE (provider = $1 AND provider_subject = $2) OR email = $3
             ORDER BY COALESCE(provider = $1 AND provider_subject = $2, false) DESC
             LIMIT 1
             FOR UPDATE`,
			u.Provider, u.ProviderSubject, u.Email,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			stored = u
			return insertUser(ctx, tx, u)
		}
		if err != nil {
			return err
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
		stored = existing
		_, err = tx.Exec(ctx,
			`UPDATE users SET provider = $2, provider_subject = $3, provider_name = $4, avatar_url = $5 WHERE id = $1`,
			existing.ID, existing.Provider, nullIfEmpty(existing.ProviderSubject),
			nullIfEmpty(existing.ProviderName), nullIfEmpty(existing.AvatarURL),
		)
		return err
	})
	if err != nil {
		return identity.User{}, err
	}
	return stored, nil
}

// CreateSession implements identity.Store.
func (s *Store) CreateSession(ctx context.Context, sess identity.Session) error {
	return s.inTx(ctx, sess.UserID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES ($1,$2,$3,$4)`,
			sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
		)
		return err
	})
}

// GetSession implements identity.Store.
func (s *Store) GetSession(ctx context.Context, id string) (*identity.Session, error) {
	if !validID(id) {
		return nil, nil
	}
	var found *identity.Session
	err := s.inTx(ctx, "", func(tx pgx.Tx) error {
		var sess identity.Session
		err := tx.QueryRow(ctx,
			`SELECT id, user_id, created_at, expires_at, revoked_at FROM sessions WHERE id = $1`, id,
		).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.RevokedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &sess
		return nil
	})
	return found, err
}

// RevokeSession implements identity.Store.
func (s *Store) RevokeSession(ctx context.Context, id string, at time.Time) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	var revoked bool
	err := s.inTx(ctx, "", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
		if err != nil {
			return err
		}
		revoked = tag.RowsAffected() == 1
		return nil
	})
	return revoked, err
}
