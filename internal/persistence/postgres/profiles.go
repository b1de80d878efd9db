package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/fittogether/internal/domain"
)

// GetProfile implements domain.ProfileRepository.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if !validID(userID) {
		return nil, nil
	}
	var found *domain.Profile
	err := s.inTx(ctx, userID, func(tx pgx.Tx) error {
		var p domain.Profile
		err := tx.QueryRow(ctx,
			`SELECT id, full_name, avatar_url, created_at FROM profiles WHERE id = $1`, userID,
		).Scan(&p.ID, &p.FullName, &p.AvatarURL, &p.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &p
		return nil
	})
	return found, err
}

// ProvisionProfile implements domain.ProfileRepository with a single upsert.
// An existing avatar is replaced only by a new one; an existing name is
// replaced only when refreshName is set.
func (s *Store) ProvisionProfile(ctx context.Context, p domain.Profile, refreshName bool) error {
	return s.inTx(ctx, p.ID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO profiles (id, full_name, avatar_url, created_at) VALUES ($1,$2,$3,$4)
             ON CONFLICT (id) DO UPDATE SET
                 avatar_url = COALESCE(EXCLUDED.avatar_url, profiles.avatar_url),
                 full_name = CASE WHEN $5::boolean THEN EXCLUDED.full_name
                                  ELSE COALESCE(profiles.full_name, EXCLUDED.full_name) END`,
			p.ID, p.FullName, p.AvatarURL, p.CreatedAt, refreshName,
		)
		return err
	})
}

// UpdateProfile implements domain.ProfileRepository.
func (s *Store) UpdateProfile(ctx context.Context, p domain.Profile) (bool, error) {
	if !validID(p.ID) {
		return false, nil
	}
	var changed bool
	err := s.inTx(ctx, p.ID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE profiles SET full_name = $2, avatar_url = $3 WHERE id = $1`,
			p.ID, p.FullName, p.AvatarURL,
		)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() == 1
		return nil
	})
	return changed, err
}
