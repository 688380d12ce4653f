package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/screening-console/internal/testfixtures"
)

func newAccountHarness(t *testing.T) (*AccountStore, *testfixtures.Clock) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	return NewAccountStore(testfixtures.NewMemoryStore(), clock.NowFunc()), clock
}

func TestAccountStore_EnsureAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	accounts, _ := newAccountHarness(t)

	user, err := accounts.EnsureAccount(ctx, " Admin@Example.com ", "Admin", "hash", true)
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if user.ID == "" || user.Email != "admin@example.com" || !user.IsAdmin {
		t.Fatalf("unexpected account %#v", user)
	}

	again, err := accounts.EnsureAccount(ctx, "admin@example.com", "Someone Else", "other", false)
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if again.ID != user.ID || again.DisplayName != "Admin" {
		t.Fatalf("expected existing account to be returned unchanged, got %#v", again)
	}

	creds, err := accounts.GetUserCredentialsByEmail(ctx, "ADMIN@example.com")
	if err != nil {
		t.Fatalf("GetUserCredentialsByEmail failed: %v", err)
	}
	if creds.PasswordHash != "hash" {
		t.Fatalf("expected original hash, got %q", creds.PasswordHash)
	}

	if _, err := accounts.GetUserCredentialsByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := accounts.EnsureAccount(ctx, "", "", "", false); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestAccountStore_Sessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	accounts, clock := newAccountHarness(t)

	user, err := accounts.EnsureAccount(ctx, "admin@example.com", "Admin", "hash", true)
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	account, err := accounts.Account(ctx, user.ID)
	if err != nil {
		t.Fatalf("Account failed: %v", err)
	}
	if account.User.Email != "admin@example.com" || account.Disabled || account.PasswordHash != "hash" {
		t.Fatalf("unexpected account %#v", account)
	}
	if _, err := accounts.Account(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	now := clock.Now()
	short, err := accounts.CreateSession(ctx, Session{UserID: user.ID, Token: "short", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	long, err := accounts.CreateSession(ctx, Session{UserID: user.ID, Token: "long", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if short.ID == "" || short.ID == long.ID {
		t.Fatalf("expected distinct session ids, got %q and %q", short.ID, long.ID)
	}

	got, err := accounts.GetSession(ctx, "long")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ID != long.ID || got.UserID != user.ID || !got.ExpiresAt.Equal(long.ExpiresAt) || got.RevokedAt != nil {
		t.Fatalf("unexpected session %#v", got)
	}

	revokedAt := clock.Advance(10 * time.Second)
	revoked, err := accounts.RevokeSession(ctx, "long", revokedAt)
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if revoked.RevokedAt == nil || !revoked.RevokedAt.Equal(revokedAt) {
		t.Fatalf("expected revocation time %v, got %#v", revokedAt, revoked.RevokedAt)
	}
	if stored, _ := accounts.GetSession(ctx, "long"); stored.RevokedAt == nil {
		t.Fatalf("expected revocation to be stored")
	}
	if _, err := accounts.RevokeSession(ctx, "missing", revokedAt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := accounts.DeleteExpiredSessions(ctx, clock.Advance(time.Minute)); err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if _, err := accounts.GetSession(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be purged, got %v", err)
	}
	if _, err := accounts.GetSession(ctx, "long"); err != nil {
		t.Fatalf("expected live session to remain, got %v", err)
	}
}
