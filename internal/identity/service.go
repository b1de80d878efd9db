// Package identity signs users up and in, keeps their sessions and tells
// subscribers when the auth state changes.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"example.com/fittogether/internal/auth"
	"example.com/fittogether/internal/domain"
)

const defaultSessionTTL = 24 * time.Hour

// SignUpInput is the password sign-up form.
type SignUpInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"full_name" validate:"max=200"`
}

// SignInInput is the password sign-in form.
type SignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Result is a freshly started session and the token that carries it.
type Result struct {
	Token   string
	User    User
	Session Session
}

// Service implements password and federated sign-in on top of a Store.
type Service struct {
	store        Store
	issuer       *auth.Issuer
	notifier     *Notifier
	oauth        *OAuthProvider
	ttl          time.Duration
	passwordCost int
	now          func() time.Time
	newID        func() string
	validate     *validator.Validate
	log          zerolog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithSessionTTL sets how long sessions stay valid.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithOAuthProvider enables federated sign-in.
func WithOAuthProvider(p *OAuthProvider) Option {
	return func(s *Service) {
		s.oauth = p
	}
}

// WithPasswordCost sets the bcrypt cost.
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.passwordCost = cost
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.log = logger
	}
}

// NewService constructs a Service.
func NewService(store Store, issuer *auth.Issuer, notifier *Notifier, opts ...Option) *Service {
	s := &Service{
		store:        store,
		issuer:       issuer,
		notifier:     notifier,
		ttl:          defaultSessionTTL,
		passwordCost: bcrypt.DefaultCost,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		validate:     validator.New(),
		log:          log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp creates a password account and signs it in.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (*Result, error) {
	input.Email = normalizeEmail(input.Email)
	input.FullName = strings.TrimSpace(input.FullName)
	if err := s.check(input); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           s.newID(),
		Email:        input.Email,
		PasswordHash: string(hash),
		Provider:     ProviderPassword,
		SignupName:   input.FullName,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info().Str("user_id", u.ID).Msg("user signed up")
	return s.signIn(ctx, u)
}

// SignIn verifies a password and starts a session.
func (s *Service) SignIn(ctx context.Context, input SignInInput) (*Result, error) {
	input.Email = normalizeEmail(input.Email)
	if err := s.check(input); err != nil {
		return nil, err
	}
	u, err := s.store.UserByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.signIn(ctx, *u)
}

// OAuthEnabled reports whether federated sign-in is configured.
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// AuthorizeURL returns the provider URL that starts federated sign-in.
func (s *Service) AuthorizeURL(state string) (string, error) {
	if s.oauth == nil {
		return "", ErrOAuthDisabled
	}
	return s.oauth.AuthCodeURL(state), nil
}

// CompleteOAuth finishes federated sign-in with the code the provider
// returned, linking to an existing account with the same email.
func (s *Service) CompleteOAuth(ctx context.Context, code string) (*Result, error) {
	if s.oauth == nil {
		return nil, ErrOAuthDisabled
	}
	if strings.TrimSpace(code) == "" {
		return nil, &domain.ValidationError{Problems: []string{"code is required"}}
	}
	profile, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	u, err := s.store.UpsertFederatedUser(ctx, User{
		ID:              s.newID(),
		Email:           profile.Email,
		Provider:        s.oauth.Name(),
		ProviderSubject: profile.Subject,
		ProviderName:    strings.TrimSpace(profile.Name),
		AvatarURL:       strings.TrimSpace(profile.Picture),
		CreatedAt:       s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert federated user: %w", err)
	}
	return s.signIn(ctx, u)
}

func (s *Service) signIn(ctx context.Context, u User) (*Result, error) {
	now := s.now()
	sess := Session{ID: s.newID(), UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	token, err := s.issuer.Issue(auth.Claims{Subject: u.ID, SessionID: sess.ID, Email: u.Email, ExpiresAt: sess.ExpiresAt})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.notify(ctx, Event{Type: EventSignedIn, Identity: identityOf(u), SessionID: sess.ID, At: now})
	return &Result{Token: token, User: u, Session: sess}, nil
}

// Session returns the live session and its user.
func (s *Service) Session(ctx context.Context, sessionID string) (*User, *Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || !sess.Active(s.now()) {
		return nil, nil, ErrSessionInvalid
	}
	u, err := s.store.UserByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, nil, ErrUserNotFound
	}
	return u, sess, nil
}

// ValidateSession implements auth.SessionValidator.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) error {
	_, _, err := s.Session(ctx, sessionID)
	return err
}

// SignOut revokes the session. Signing out twice is not an error.
func (s *Service) SignOut(ctx context.Context, userID, sessionID string) error {
	revoked, err := s.store.RevokeSession(ctx, sessionID, s.now())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if revoked {
		s.notify(ctx, Event{Type: EventSignedOut, Identity: domain.Identity{UserID: userID}, SessionID: sessionID, At: s.now()})
	}
	return nil
}

func (s *Service) notify(ctx context.Context, e Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, e)
}

func (s *Service) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		case "email":
			problems = append(problems, "email must be a valid address")
		case "min":
			problems = append(problems, fmt.Sprintf("%s must be at least %s characters", strings.ToLower(fe.Field()), fe.Param()))
		default:
			problems = append(problems, fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field())))
		}
	}
	return &domain.ValidationError{Problems: problems}
}

func identityOf(u User) domain.Identity {
	return domain.Identity{
		UserID:       u.ID,
		Email:        u.Email,
		Provider:     u.Provider,
		ProviderName: u.ProviderName,
		SignupName:   u.SignupName,
		AvatarURL:    u.AvatarURL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
