package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// SessionChangeKind labels a session lifecycle event.
type SessionChangeKind string

const (
	SessionReady     SessionChangeKind = "ready"
	SessionSignedIn  SessionChangeKind = "signed_in"
	SessionSignedOut SessionChangeKind = "signed_out"
)

// SessionChange is delivered to session listeners.
type SessionChange struct {
	Kind      SessionChangeKind
	UserID    string
	SessionID string
}

// SessionListener receives session changes.
type SessionListener func(SessionChange)

// Authenticator is the credential and token backend of a SessionManager.
type Authenticator interface {
	Authenticate(ctx context.Context, params AuthenticateParams) (AuthenticateResult, error)
	ValidateSession(ctx context.Context, token string) (Principal, error)
	RevokeSession(ctx context.Context, token string) (Session, error)
}

// SessionManager owns sign-in state for the process. It becomes usable after
// Init succeeds and stops accepting work after Dispose.
type SessionManager struct {
	auth   Authenticator
	probe  func(context.Context) error
	logger *slog.Logger

	ready     chan struct{}
	mu        sync.Mutex
	isReady   bool
	disposed  bool
	nextID    int
	listeners map[int]SessionListener
}

// NewSessionManager constructs a SessionManager. probe, when set, is run by
// Init and must succeed before the manager is ready.
func NewSessionManager(auth Authenticator, probe func(context.Context) error, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		auth:      auth,
		probe:     probe,
		logger:    defaultLogger(logger),
		ready:     make(chan struct{}),
		listeners: make(map[int]SessionListener),
	}
}

func (m *SessionManager) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, m.logger, "SessionManager", operation, attrs...)
}

// Init runs the readiness probe once. Calling Init again after success is a
// no-op; after a failure it retries the probe.
func (m *SessionManager) Init(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("SessionManager is nil")
	}
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrNotReady
	}
	if m.isReady {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if m.probe != nil {
		if err := m.probe(ctx); err != nil {
			m.loggerWith(ctx, "Init").ErrorContext(ctx, "session backend not ready", "error", err)
			return fmt.Errorf("session manager init: %w", err)
		}
	}

	m.mu.Lock()
	if m.isReady || m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.isReady = true
	close(m.ready)
	m.mu.Unlock()

	m.loggerWith(ctx, "Init").InfoContext(ctx, "session manager ready")
	m.broadcast(ctx, SessionChange{Kind: SessionReady})
	return nil
}

// Ready is closed once Init has succeeded.
func (m *SessionManager) Ready() <-chan struct{} {
	return m.ready
}

// Subscribe registers fn and returns a func that removes it. When the manager
// is already ready fn is called immediately with a ready change.
func (m *SessionManager) Subscribe(fn SessionListener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return func() {}
	}
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	ready := m.isReady
	m.mu.Unlock()

	if ready {
		m.deliver(context.Background(), fn, SessionChange{Kind: SessionReady})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *SessionManager) active() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed || !m.isReady {
		return ErrNotReady
	}
	return nil
}

// Login authenticates and announces the new session.
func (m *SessionManager) Login(ctx context.Context, params AuthenticateParams) (AuthenticateResult, error) {
	if m == nil {
		return AuthenticateResult{}, fmt.Errorf("SessionManager is nil")
	}
	if err := m.active(); err != nil {
		return AuthenticateResult{}, err
	}
	result, err := m.auth.Authenticate(ctx, params)
	if err != nil {
		return AuthenticateResult{}, err
	}
	m.broadcast(ctx, SessionChange{Kind: SessionSignedIn, UserID: result.User.ID, SessionID: result.Session.ID})
	return result, nil
}

// Validate resolves a session token to its principal.
func (m *SessionManager) Validate(ctx context.Context, token string) (Principal, error) {
	if m == nil {
		return Principal{}, fmt.Errorf("SessionManager is nil")
	}
	if err := m.active(); err != nil {
		return Principal{}, err
	}
	return m.auth.ValidateSession(ctx, token)
}

// Logout revokes the session behind token and announces the sign-out.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	if m == nil {
		return fmt.Errorf("SessionManager is nil")
	}
	if err := m.active(); err != nil {
		return err
	}
	session, err := m.auth.RevokeSession(ctx, token)
	if err != nil {
		return err
	}
	m.broadcast(ctx, SessionChange{Kind: SessionSignedOut, UserID: session.UserID, SessionID: session.ID})
	return nil
}

// Dispose drops every listener. Later calls fail with ErrNotReady and late
// results are not broadcast.
func (m *SessionManager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
	m.listeners = make(map[int]SessionListener)
}

func (m *SessionManager) broadcast(ctx context.Context, change SessionChange) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]SessionListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		m.deliver(ctx, fn, change)
	}
}

func (m *SessionManager) deliver(ctx context.Context, fn SessionListener, change SessionChange) {
	defer func() {
		if r := recover(); r != nil {
			m.loggerWith(ctx, "broadcast", "kind", string(change.Kind)).ErrorContext(ctx, "session listener panicked", "panic", r)
		}
	}()
	fn(change)
}
