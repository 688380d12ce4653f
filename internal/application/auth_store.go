package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/screening-console/internal/persistence"
)

// AccountStore keeps console accounts and their sessions in the document store.
type AccountStore struct {
	store persistence.DocumentStore
	now   func() time.Time
}

var _ AccountBackend = (*AccountStore)(nil)

// NewAccountStore constructs an AccountStore.
func NewAccountStore(store persistence.DocumentStore, now func() time.Time) *AccountStore {
	if now == nil {
		now = time.Now
	}
	return &AccountStore{store: store, now: now}
}

func decodeUser(doc persistence.Document) UserCredentials {
	f := doc.Fields
	return UserCredentials{
		User: User{
			ID:          doc.ID,
			Email:       f.Text("email"),
			DisplayName: f.Text("displayName"),
			IsAdmin:     f.Bool("isAdmin"),
			CreatedAt:   f.Time("createdAt"),
			UpdatedAt:   f.Time("updatedAt"),
		},
		PasswordHash: f.Text("passwordHash"),
		Disabled:     f.Bool("disabled"),
	}
}

// GetUserCredentialsByEmail finds an account by its lower-cased email.
func (s *AccountStore) GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error) {
	docs, err := s.store.Query(ctx, persistence.CollectionUsers, persistence.Where("email", strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return UserCredentials{}, fmt.Errorf("query users: %w", err)
	}
	if len(docs) == 0 {
		return UserCredentials{}, ErrNotFound
	}
	return decodeUser(docs[0]), nil
}

// Account returns an account by id.
func (s *AccountStore) Account(ctx context.Context, id string) (UserCredentials, error) {
	doc, err := s.store.Get(ctx, persistence.CollectionUsers, id)
	if err != nil {
		return UserCredentials{}, translateStoreError("get user", err)
	}
	return decodeUser(doc), nil
}

// EnsureAccount creates the account for email when it does not exist yet and
// returns it. Existing accounts are left untouched.
func (s *AccountStore) EnsureAccount(ctx context.Context, email, displayName, passwordHash string, isAdmin bool) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || passwordHash == "" {
		return User{}, &ValidationError{FieldErrors: map[string]string{"email": "Email and password hash are required."}}
	}

	creds, err := s.GetUserCredentialsByEmail(ctx, email)
	if err == nil {
		return creds.User, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	now := s.now()
	user := User{
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		IsAdmin:     isAdmin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.store.Add(ctx, persistence.CollectionUsers, persistence.Fields{
		"email":        user.Email,
		"displayName":  user.DisplayName,
		"isAdmin":      user.IsAdmin,
		"passwordHash": passwordHash,
		"disabled":     false,
		"createdAt":    persistence.FormatTime(now),
		"updatedAt":    persistence.FormatTime(now),
	})
	if err != nil {
		return User{}, fmt.Errorf("add user: %w", err)
	}
	user.ID = id
	return user, nil
}

func encodeSession(session Session) persistence.Fields {
	fields := persistence.Fields{
		"userId":    session.UserID,
		"token":     session.Token,
		"expiresAt": persistence.FormatTime(session.ExpiresAt),
		"createdAt": persistence.FormatTime(session.CreatedAt),
		"updatedAt": persistence.FormatTime(session.UpdatedAt),
		"revokedAt": nil,
	}
	if session.RevokedAt != nil {
		fields["revokedAt"] = persistence.FormatTime(*session.RevokedAt)
	}
	return fields
}

func decodeSession(doc persistence.Document) Session {
	f := doc.Fields
	session := Session{
		ID:        doc.ID,
		UserID:    f.Text("userId"),
		Token:     f.Text("token"),
		ExpiresAt: f.Time("expiresAt"),
		CreatedAt: f.Time("createdAt"),
		UpdatedAt: f.Time("updatedAt"),
	}
	if revoked := f.Time("revokedAt"); !revoked.IsZero() {
		session.RevokedAt = &revoked
	}
	return session
}

// CreateSession stores a new session. The document id becomes the session id.
func (s *AccountStore) CreateSession(ctx context.Context, session Session) (Session, error) {
	id, err := s.store.Add(ctx, persistence.CollectionSessions, encodeSession(session))
	if err != nil {
		return Session{}, fmt.Errorf("add session: %w", err)
	}
	session.ID = id
	return session, nil
}

func (s *AccountStore) findSession(ctx context.Context, token string) (Session, error) {
	docs, err := s.store.Query(ctx, persistence.CollectionSessions, persistence.Where("token", token))
	if err != nil {
		return Session{}, fmt.Errorf("query sessions: %w", err)
	}
	if len(docs) == 0 {
		return Session{}, ErrNotFound
	}
	return decodeSession(docs[0]), nil
}

// GetSession looks a session up by token.
func (s *AccountStore) GetSession(ctx context.Context, token string) (Session, error) {
	return s.findSession(ctx, token)
}

func (s *AccountStore) updateSession(ctx context.Context, session Session) (Session, error) {
	if err := s.store.Update(ctx, persistence.CollectionSessions, session.ID, encodeSession(session)); err != nil {
		return Session{}, translateStoreError("update session", err)
	}
	return session, nil
}

// RevokeSession marks the session holding token as revoked.
func (s *AccountStore) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error) {
	session, err := s.findSession(ctx, token)
	if err != nil {
		return Session{}, err
	}
	session.RevokedAt = &revokedAt
	session.UpdatedAt = revokedAt
	return s.updateSession(ctx, session)
}

// DeleteExpiredSessions removes sessions that expired before reference.
func (s *AccountStore) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	docs, err := s.store.Query(ctx, persistence.CollectionSessions)
	if err != nil {
		return fmt.Errorf("query sessions: %w", err)
	}
	for _, doc := range docs {
		session := decodeSession(doc)
		if session.ExpiresAt.IsZero() || session.ExpiresAt.After(reference) {
			continue
		}
		if err := s.store.Delete(ctx, persistence.CollectionSessions, doc.ID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("delete session %s: %w", doc.ID, err)
		}
	}
	return nil
}
