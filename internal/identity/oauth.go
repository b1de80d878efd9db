package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"example.com/fittogether/internal/config"
)

// ErrOAuthDisabled is returned when no federated provider is configured.
var ErrOAuthDisabled = errors.New("federated sign-in is not configured")

// ProviderProfile is what the provider's user-info endpoint reports.
type ProviderProfile struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// OAuthProvider runs the authorization-code flow against one provider.
type OAuthProvider struct {
	name        string
	cfg         *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// NewOAuthProvider builds a provider from configuration. A nil client uses
// http.DefaultClient.
func NewOAuthProvider(cfg config.OAuthConfig, client *http.Client) *OAuthProvider {
	return &OAuthProvider{
		name: cfg.Provider,
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes: cfg.Scopes,
		},
		userInfoURL: cfg.UserInfoURL,
		client:      client,
	}
}

// Name returns the provider name recorded on federated users.
func (p *OAuthProvider) Name() string {
	return p.name
}

// AuthCodeURL returns the provider URL the browser is redirected to.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for a token and fetches the
// user's profile with it.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (ProviderProfile, error) {
	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return ProviderProfile{}, err
	}
	resp, err := p.cfg.Client(ctx, token).Do(req)
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ProviderProfile{}, fmt.Errorf("fetch user info: unexpected status %d", resp.StatusCode)
	}

	var profile ProviderProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return ProviderProfile{}, fmt.Errorf("decode user info: %w", err)
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	if profile.Subject == "" || profile.Email == "" {
		return ProviderProfile{}, errors.New("user info is missing subject or email")
	}
	return profile, nil
}
