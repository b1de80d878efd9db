package domain

import (
	"context"
	"fmt"
	"strings"

	"example.com/fittogether/internal/observability"
)

// DeriveFullName picks a display name with precedence provider name, signup
// name, email local part. It returns nil when none is available.
func DeriveFullName(id Identity) *string {
	for _, candidate := range []string{id.ProviderName, id.SignupName} {
		if name := strings.TrimSpace(candidate); name != "" {
			return &name
		}
	}
	local, _, _ := strings.Cut(strings.TrimSpace(id.Email), "@")
	if local == "" {
		return nil
	}
	return &local
}

// ProvisionProfile makes sure a profile exists for the identity. Repeated
// calls never create a second row; they refresh the avatar when the provider
// supplies one and the name when the provider reports one.
func (s *Service) ProvisionProfile(ctx context.Context, id Identity) error {
	if strings.TrimSpace(id.UserID) == "" {
		return invalid("user id is required")
	}
	avatar := strings.TrimSpace(id.AvatarURL)
	p := Profile{
		ID:        id.UserID,
		FullName:  DeriveFullName(id),
		AvatarURL: optional(&avatar),
		CreatedAt: s.now(),
	}
	refreshName := strings.TrimSpace(id.ProviderName) != ""
	err := s.repo.ProvisionProfile(ctx, p, refreshName)
	observability.ProfileProvisioned(err)
	if err != nil {
		return fmt.Errorf("provision profile: %w", err)
	}
	return nil
}

// ensureProfile provisions a profile for authors who never went through
// sign-in provisioning. The upsert only runs when the read finds no row.
func (s *Service) ensureProfile(ctx context.Context, viewer Viewer) error {
	existing, err := s.repo.GetProfile(ctx, viewer.UserID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	if existing != nil {
		return nil
	}
	return s.ProvisionProfile(ctx, Identity{UserID: viewer.UserID, Email: viewer.Email})
}

// GetProfile returns the viewer's profile, or nil when none exists yet.
func (s *Service) GetProfile(ctx context.Context, viewer Viewer) (*Profile, error) {
	if !viewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	p, err := s.repo.GetProfile(ctx, viewer.UserID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile overwrites the viewer's name and avatar, creating the
// profile when it does not exist yet.
func (s *Service) UpdateProfile(ctx context.Context, viewer Viewer, input ProfileInput) (*Profile, error) {
	if !viewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	input = input.normalized()
	if err := s.check(input); err != nil {
		return nil, err
	}
	current, err := s.GetProfile(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if current == nil {
		p := Profile{ID: viewer.UserID, FullName: input.FullName, AvatarURL: input.AvatarURL, CreatedAt: s.now()}
		if err := s.repo.ProvisionProfile(ctx, p, true); err != nil {
			return nil, fmt.Errorf("create profile: %w", err)
		}
		return s.GetProfile(ctx, viewer)
	}

	updated := *current
	updated.FullName = input.FullName
	updated.AvatarURL = input.AvatarURL
	changed, err := s.repo.UpdateProfile(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if !changed {
		return nil, fmt.Errorf("update profile: profile %s vanished", viewer.UserID)
	}
	return &updated, nil
}
