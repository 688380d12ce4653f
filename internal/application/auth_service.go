package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountBackend is the account and session storage behind sign-in.
// AccountStore implements it.
type AccountBackend interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	Account(ctx context.Context, id string) (UserCredentials, error)
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthOptions tunes an AuthService. Zero values select argon2id verification,
// random UUID tokens, time.Now and a 24 hour session lifetime.
type AuthOptions struct {
	Verify     PasswordVerifier
	NewToken   func() string
	Now        func() time.Time
	SessionTTL time.Duration
	Logger     *slog.Logger
}

// AuthService signs console accounts in and resolves their session tokens.
// It is the Authenticator behind SessionManager.
type AuthService struct {
	accounts AccountBackend
	verify   PasswordVerifier
	newToken func() string
	now      func() time.Time
	ttl      time.Duration
	logger   *slog.Logger
}

var _ Authenticator = (*AuthService)(nil)

func NewAuthService(accounts AccountBackend, opts AuthOptions) *AuthService {
	s := &AuthService{
		accounts: accounts,
		verify:   opts.Verify,
		newToken: opts.NewToken,
		now:      opts.Now,
		ttl:      opts.SessionTTL,
		logger:   defaultLogger(opts.Logger),
	}
	if s.verify == nil {
		s.verify = VerifyPassword
	}
	if s.newToken == nil {
		s.newToken = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	return s
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready() error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.accounts == nil {
		return fmt.Errorf("account backend not configured")
	}
	return nil
}

// Authenticate checks an email and password and opens a session for the
// account. Unknown emails and wrong passwords both read as
// ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	email := strings.ToLower(strings.TrimSpace(params.Email))
	logger := s.loggerWith(ctx, "Authenticate", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign-in failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "signed in", "user_id", result.User.ID, "session_id", result.Session.ID)
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var account UserCredentials
	account, err = s.accounts.GetUserCredentialsByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		err = ErrInvalidCredentials
		return
	case err != nil:
		return
	case account.Disabled:
		err = ErrAccountDisabled
		return
	}
	if s.verify(account.PasswordHash, params.Password) != nil {
		err = ErrInvalidCredentials
		return
	}

	now := s.now()
	if err = s.accounts.DeleteExpiredSessions(ctx, now); err != nil {
		return
	}
	var session Session
	session, err = s.accounts.CreateSession(ctx, Session{
		UserID:    account.User.ID,
		Token:     s.newToken(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return
	}

	result = AuthenticateResult{User: account.User, Session: session}
	return
}

// ValidateSession resolves a token to the principal of a live session.
// Sessions of accounts disabled after sign-in read as revoked.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if err = s.ready(); err != nil {
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidCredentials
	}

	defer func() {
		if err != nil {
			s.loggerWith(ctx, "ValidateSession").WarnContext(ctx, "session rejected", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var session Session
	session, err = s.accounts.GetSession(ctx, token)
	if errors.Is(err, ErrNotFound) {
		err = ErrUnauthorized
	}
	if err != nil {
		return
	}
	if session.RevokedAt != nil {
		err = ErrSessionRevoked
		return
	}
	if !session.ExpiresAt.After(s.now()) {
		err = ErrSessionExpired
		return
	}

	var account UserCredentials
	account, err = s.accounts.Account(ctx, session.UserID)
	if errors.Is(err, ErrNotFound) {
		err = ErrUnauthorized
	}
	if err != nil {
		return
	}
	if account.Disabled {
		err = ErrSessionRevoked
		return
	}

	user := account.User
	principal = Principal{UserID: user.ID, Email: user.Email, DisplayName: user.DisplayName, IsAdmin: user.IsAdmin}
	return
}

// RevokeSession signs the session behind token out and returns it so the
// caller can announce which account left.
func (s *AuthService) RevokeSession(ctx context.Context, token string) (session Session, err error) {
	if err = s.ready(); err != nil {
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidCredentials
	}

	session, err = s.accounts.RevokeSession(ctx, token, s.now())
	if errors.Is(err, ErrNotFound) {
		err = ErrInvalidCredentials
	}
	logger := s.loggerWith(ctx, "RevokeSession")
	if err != nil {
		logger.ErrorContext(ctx, "sign-out failed", "error", err, "error_kind", ErrorKind(err))
		return
	}
	logger.InfoContext(ctx, "signed out", "user_id", session.UserID, "session_id", session.ID)
	return
}
