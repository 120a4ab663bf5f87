// Package auth implements the identity provider behind the session gate:
// email/password accounts, Google sign-in, session tokens and password reset.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"accountbook/internal/cache"
	"accountbook/internal/core"
	"accountbook/internal/log"
	"accountbook/internal/storage"
)

const (
	minPasswordLen = 6
	bcryptCost     = 12

	maxFailedSignIns = 5
	lockoutWindow    = 10 * time.Minute
	resetTokenTTL    = time.Hour
	stateTTL         = 10 * time.Minute
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// Session is the result of a successful sign-in.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      core.User `json:"user"`
}

// Provider is the identity surface the HTTP layer consumes.
type Provider interface {
	SignUp(ctx context.Context, email, password, confirm string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	FederatedURL() (string, error)
	SignInFederated(ctx context.Context, state, code string) (Session, error)
	SignOut(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	Authenticate(ctx context.Context, token string) (*Claims, error)
	Watch(buffer int) (<-chan Event, func())
}

// ResetSender delivers password reset tokens.
type ResetSender interface {
	SendReset(ctx context.Context, email, token string) error
}

// LogResetSender writes reset tokens to the log. Used until a mail
// transport is configured.
type LogResetSender struct {
	Logger *log.Logger
}

func (s LogResetSender) SendReset(ctx context.Context, email, token string) error {
	s.Logger.InfoContext(ctx, "Password reset requested", "email", email, "reset_token", token)
	return nil
}

// Options configures a Service. Federator and Sender are optional.
type Options struct {
	Users     storage.UserRepository
	Tokens    *TokenIssuer
	Federator Federator
	Sender    ResetSender
	Logger    *log.Logger
	Now       func() time.Time
}

// Service is the local identity provider.
type Service struct {
	users     storage.UserRepository
	tokens    *TokenIssuer
	federator Federator
	sender    ResetSender
	watcher   *Watcher
	logger    *log.Logger
	audit     *log.StructuredLogger
	now       func() time.Time

	failures *cache.LRUCache[int]
	resets   *cache.LRUCache[string]
	states   *cache.LRUCache[struct{}]
}

var _ Provider = (*Service)(nil)

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentAuth)
	}
	logger = logger.WithComponent(log.ComponentAuth)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sender := opts.Sender
	if sender == nil {
		sender = LogResetSender{Logger: logger}
	}
	return &Service{
		users:     opts.Users,
		tokens:    opts.Tokens,
		federator: opts.Federator,
		sender:    sender,
		watcher:   NewWatcher(),
		logger:    logger,
		audit:     log.NewStructuredLogger(logger),
		now:       now,
		failures:  cache.NewLRUCache[int](10_000, lockoutWindow).WithClock(now),
		resets:    cache.NewLRUCache[string](10_000, resetTokenTTL).WithClock(now),
		states:    cache.NewLRUCache[struct{}](10_000, stateTTL).WithClock(now),
	}
}

// Caches returns the internal caches by name for periodic sweeping.
func (s *Service) Caches() map[string]cache.Cleaner {
	return map[string]cache.Cleaner{
		"auth_failures": s.failures,
		"auth_resets":   s.resets,
		"auth_states":   s.states,
		"auth_revoked":  s.tokens.RevokedCache(),
	}
}

func (s *Service) SignUp(ctx context.Context, email, password, confirm string) (Session, error) {
	if err := checkPassword(password, confirm); err != nil {
		return Session{}, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, s.reject(ctx, OpSignUp, CodeInvalidEmail, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     core.ProviderPassword,
		CreatedAt:    now,
		LastLogin:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return Session{}, s.reject(ctx, OpSignUp, CodeEmailAlreadyInUse, err)
		}
		return Session{}, core.Unavailable("create user", err)
	}

	s.logger.InfoContext(ctx, "User signed up", log.FieldOwnerID, u.ID)
	return s.startSession(u)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, s.reject(ctx, OpSignIn, CodeInvalidEmail, err)
	}
	if n, _ := s.failures.Get(email); n >= maxFailedSignIns {
		return Session{}, s.reject(ctx, OpSignIn, CodeTooManyRequests, nil)
	}

	u, err := s.users.UserByEmail(ctx, email)
	if core.IsNotFound(err) {
		return Session{}, s.reject(ctx, OpSignIn, CodeUserNotFound, nil)
	}
	if err != nil {
		return Session{}, core.Unavailable("get user", err)
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.failures.Update(email, func(old int, _ bool) int { return old + 1 })
		return Session{}, s.reject(ctx, OpSignIn, CodeWrongPassword, nil)
	}
	s.failures.Delete(email)

	return s.completeSignIn(ctx, u)
}

// FederatedURL returns the provider consent URL with a fresh CSRF state.
func (s *Service) FederatedURL() (string, error) {
	if s.federator == nil {
		return "", authErr(OpGoogle, CodeFederationDisabled, nil)
	}
	state := uuid.NewString()
	s.states.Set(state, struct{}{})
	return s.federator.AuthCodeURL(state), nil
}

// SignInFederated completes the external flow. An empty code means the user
// closed the consent screen.
func (s *Service) SignInFederated(ctx context.Context, state, code string) (Session, error) {
	if s.federator == nil {
		return Session{}, s.reject(ctx, OpGoogle, CodeFederationDisabled, nil)
	}
	if _, ok := s.states.Get(state); !ok {
		return Session{}, s.reject(ctx, OpGoogle, CodeInvalidActionCode, nil)
	}
	s.states.Delete(state)
	if strings.TrimSpace(code) == "" {
		return Session{}, s.reject(ctx, OpGoogle, CodePopupClosedByUser, nil)
	}

	id, err := s.federator.Exchange(ctx, code)
	if err != nil {
		s.logger.WarnContext(ctx, "Federated exchange failed", log.FieldError, err)
		return Session{}, authErr(OpGoogle, "auth/internal-error", err)
	}
	email, err := normalizeEmail(id.Email)
	if err != nil {
		return Session{}, s.reject(ctx, OpGoogle, CodeInvalidEmail, err)
	}
	if !id.Verified {
		return Session{}, s.reject(ctx, OpGoogle, CodeUnverifiedEmail, nil)
	}

	u, err := s.users.UserByEmail(ctx, email)
	switch {
	case err == nil && u.Provider != core.ProviderGoogle:
		// A Google identity never takes over a password account.
		return Session{}, s.reject(ctx, OpGoogle, CodeAccountExists, nil)
	case core.IsNotFound(err):
		now := s.now().UTC()
		u = core.User{
			ID:        uuid.NewString(),
			Email:     email,
			Provider:  core.ProviderGoogle,
			CreatedAt: now,
		}
		if err := s.users.CreateUser(ctx, u); err != nil {
			return Session{}, core.Unavailable("create user", err)
		}
		s.logger.InfoContext(ctx, "User registered through Google", log.FieldOwnerID, u.ID)
	case err != nil:
		return Session{}, core.Unavailable("get user", err)
	}

	return s.completeSignIn(ctx, u)
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	s.tokens.Revoke(claims)
	s.watcher.publish(Event{Kind: SignedOut, UserID: claims.Subject, At: s.now()})
	s.logger.InfoContext(ctx, "User signed out", log.FieldOwnerID, claims.Subject)
	return nil
}

// RequestPasswordReset issues a single-use reset token for a registered
// password account.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return s.reject(ctx, OpReset, CodeInvalidEmail, err)
	}
	u, err := s.users.UserByEmail(ctx, email)
	if core.IsNotFound(err) {
		return s.reject(ctx, OpReset, CodeUserNotFound, nil)
	}
	if err != nil {
		return core.Unavailable("get user", err)
	}

	token := uuid.NewString()
	s.resets.Set(token, u.ID)
	if err := s.sender.SendReset(ctx, u.Email, token); err != nil {
		s.resets.Delete(token)
		return authErr(OpReset, "auth/internal-error", err)
	}
	return nil
}

func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := checkPassword(newPassword, newPassword); err != nil {
		return err
	}
	userID, ok := s.resets.Get(token)
	if !ok {
		return s.reject(ctx, OpReset, CodeInvalidActionCode, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return core.Unavailable("update password", err)
	}
	s.resets.Delete(token)

	u, err := s.users.UserByID(ctx, userID)
	if err == nil {
		s.failures.Delete(u.Email)
	}
	s.logger.InfoContext(ctx, "Password reset completed", log.FieldOwnerID, userID)
	return nil
}

// Authenticate resolves a bearer token to its claims.
func (s *Service) Authenticate(_ context.Context, token string) (*Claims, error) {
	return s.tokens.Parse(token)
}

// Watch subscribes to sign-in and sign-out notifications.
func (s *Service) Watch(buffer int) (<-chan Event, func()) {
	return s.watcher.Subscribe(buffer)
}

func (s *Service) completeSignIn(ctx context.Context, u core.User) (Session, error) {
	now := s.now().UTC()
	if err := s.users.TouchLogin(ctx, u.ID, now); err != nil {
		s.logger.WarnContext(ctx, "Failed to record last login", log.FieldOwnerID, u.ID, log.FieldError, err)
	}
	u.LastLogin = now
	return s.startSession(u)
}

func (s *Service) startSession(u core.User) (Session, error) {
	token, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	s.watcher.publish(Event{Kind: SignedIn, UserID: u.ID, At: s.now()})
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) reject(ctx context.Context, op Op, code string, cause error) error {
	s.audit.LogAuthFailure(ctx, string(op), code)
	return authErr(op, code, cause)
}

func checkPassword(password, confirm string) error {
	if password != confirm {
		return &core.ValidationError{Field: "password", Err: ErrPasswordMismatch}
	}
	if len([]rune(password)) < minPasswordLen {
		return &core.ValidationError{Field: "password", Err: ErrPasswordTooShort}
	}
	return nil
}

func normalizeEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@"):], ".") {
		return "", fmt.Errorf("invalid email %q", s)
	}
	return strings.ToLower(s), nil
}
