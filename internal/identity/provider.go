// Package identity signs users up, in and out, and tracks their sessions.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/auth"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MinPasswordLength is the shortest password sign-up accepts.
const MinPasswordLength = 6

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindBySubject(ctx context.Context, provider, subject string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (string, error)
}

type sessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Revoke(ctx context.Context, id string) error
}

type AuthResult struct {
	Token   string              `json:"token"`
	User    models.UserResponse `json:"user"`
	Session *models.Session     `json:"session"`
}

// Provider is the identity provider backed by the document store.
type Provider struct {
	users     userStore
	sessions  sessionStore
	hub       *Hub
	federated map[string]*FederatedProvider
	secret    string
	ttl       time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func NewProvider(users userStore, sessions sessionStore, hub *Hub, secret string, ttl time.Duration, log *zap.Logger, federated ...*FederatedProvider) *Provider {
	p := &Provider{
		users:     users,
		sessions:  sessions,
		hub:       hub,
		federated: map[string]*FederatedProvider{},
		secret:    secret,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
	}
	for _, f := range federated {
		p.federated[f.Name] = f
	}
	return p
}

func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if len(password) < MinPasswordLength {
		return nil, authErr(WeakPassword, "Password must be at least 6 characters", nil)
	}
	existing, err := p.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, authErr(Other, "Failed to create an account", err)
	}
	if existing != nil {
		return nil, authErr(EmailInUse, "Email already in use", nil)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, authErr(Other, "Failed to create an account", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		Role:         "user",
		CreatedAt:    p.now().UTC().Format(time.RFC3339),
	}
	id, err := p.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, authErr(EmailInUse, "Email already in use", nil)
	}
	if err != nil {
		return nil, authErr(Other, "Failed to create an account", err)
	}
	user.ID = id
	p.log.Info("user signed up", zap.String("userId", id))
	return p.startSession(ctx, user)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := p.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, authErr(Other, "Failed to sign in", err)
	}
	if user == nil || user.PasswordHash == "" || !auth.CheckPassword(password, user.PasswordHash) {
		return nil, authErr(InvalidCredentials, "Invalid email or password", nil)
	}
	return p.startSession(ctx, user)
}

// FederatedAuthURL returns the consent page URL of the named provider.
func (p *Provider) FederatedAuthURL(provider, state string) (string, error) {
	f, ok := p.federated[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	return f.AuthURL(state), nil
}

// SignInFederated completes the provider's flow with code. Unknown accounts
// are created; an existing password account with the same email is reused.
func (p *Provider) SignInFederated(ctx context.Context, provider, code string) (*AuthResult, error) {
	f, ok := p.federated[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	prof, err := f.Profile(ctx, code)
	if err != nil {
		return nil, authErr(Other, "Failed to sign in with "+provider, err)
	}

	user, err := p.users.FindBySubject(ctx, provider, prof.Subject)
	if err == nil && user == nil {
		user, err = p.users.FindByEmail(ctx, normalizeEmail(prof.Email))
	}
	if err != nil {
		return nil, authErr(Other, "Failed to sign in with "+provider, err)
	}
	if user == nil {
		user = &models.User{
			Email:       normalizeEmail(prof.Email),
			DisplayName: prof.Name,
			Role:        "user",
			Provider:    provider,
			Subject:     prof.Subject,
			CreatedAt:   p.now().UTC().Format(time.RFC3339),
		}
		id, err := p.users.Create(ctx, user)
		if err != nil {
			return nil, authErr(Other, "Failed to sign in with "+provider, err)
		}
		user.ID = id
		p.log.Info("federated user created", zap.String("userId", id), zap.String("provider", provider))
	}
	return p.startSession(ctx, user)
}

// CurrentSession resolves token to its session. Expired, revoked or
// unknown sessions yield ErrSessionInvalid.
func (p *Provider) CurrentSession(ctx context.Context, token string) (*models.Session, error) {
	claims, err := auth.ValidateToken(p.secret, token)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	s, err := p.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !s.Active(p.now()) || s.UserID != claims.UserID {
		return nil, ErrSessionInvalid
	}
	return s, nil
}

// SignOut revokes the session behind token and notifies subscribers.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	s, err := p.CurrentSession(ctx, token)
	if err != nil {
		return err
	}
	if err := p.sessions.Revoke(ctx, s.ID); err != nil {
		return err
	}
	s.Revoked = true
	p.hub.Publish(*s)
	p.log.Info("user signed out", zap.String("userId", s.UserID))
	return nil
}

func (p *Provider) Subscribe(userID string) (<-chan models.Session, func()) {
	return p.hub.Subscribe(userID)
}

// Me returns the stored profile of the session's user.
func (p *Provider) Me(ctx context.Context, userID string) (*models.UserResponse, error) {
	user, err := p.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("user not found")
	}
	resp := user.ToResponse()
	return &resp, nil
}

// SeedAdmin creates the reviewer account once.
func (p *Provider) SeedAdmin(ctx context.Context, email, password string) error {
	existing, _ := p.users.FindByEmail(ctx, normalizeEmail(email))
	if existing != nil {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = p.users.Create(ctx, &models.User{
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		DisplayName:  "Admin",
		Role:         "admin",
		CreatedAt:    p.now().UTC().Format(time.RFC3339),
	})
	return err
}

func (p *Provider) startSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	s := &models.Session{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		ExpiresAt:   p.now().Add(p.ttl).UTC(),
	}
	if err := p.sessions.Create(ctx, s); err != nil {
		return nil, authErr(Other, "Failed to start session", err)
	}
	token, err := auth.GenerateToken(p.secret, user.ID, user.Email, user.Role, s.ID, s.ExpiresAt)
	if err != nil {
		return nil, authErr(Other, "Failed to start session", err)
	}
	p.hub.Publish(*s)
	return &AuthResult{Token: token, User: user.ToResponse(), Session: s}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
