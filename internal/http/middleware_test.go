package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/screening-console/internal/application"
)

type fakeSessionValidator struct {
	principal application.Principal
	err       error
	tokens    []string
}

func (f *fakeSessionValidator) Validate(_ context.Context, token string) (application.Principal, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return application.Principal{}, f.err
	}
	return f.principal, nil
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		header         string
		cookie         *http.Cookie
		validateErr    error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "missing credentials",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "malformed authorization header",
			header:         "Token abc",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired session",
			header:         "Bearer expired",
			validateErr:    application.ErrSessionExpired,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "AUTH_SESSION_EXPIRED",
		},
		{
			name:           "revoked session via cookie",
			cookie:         &http.Cookie{Name: "session_token", Value: "revoked"},
			validateErr:    application.ErrSessionRevoked,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "AUTH_SESSION_INVALID",
		},
		{
			name:           "unknown session",
			header:         "Bearer unknown",
			validateErr:    application.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "AUTH_SESSION_INVALID",
		},
		{
			name:           "auth not ready",
			header:         "Bearer early",
			validateErr:    application.ErrNotReady,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "AUTH_NOT_READY",
		},
		{
			name:           "backend failure",
			header:         "Bearer token",
			validateErr:    errors.New("store offline"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			validator := &fakeSessionValidator{err: tc.validateErr}
			called := false
			handler := RequireSession(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if called {
				t.Fatalf("expected next handler not to run")
			}
			if rec.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d", tc.expectedStatus, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.ErrorCode != tc.expectedCode {
				t.Fatalf("expected error code %q, got %q", tc.expectedCode, resp.ErrorCode)
			}
		})
	}
}

func TestRequireSessionAttachesPrincipal(t *testing.T) {
	t.Parallel()

	validator := &fakeSessionValidator{principal: application.Principal{UserID: "user-1", Email: "a@example.com"}}
	var got application.Principal
	handler := RequireSession(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Errorf("expected principal on context")
		}
		got = principal
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: "cookie-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", got.UserID)
	}
	if len(validator.tokens) != 1 || validator.tokens[0] != "cookie-token" {
		t.Fatalf("expected cookie token to be validated, got %v", validator.tokens)
	}
}

func TestProtectBypassesPublicPaths(t *testing.T) {
	t.Parallel()

	validator := &fakeSessionValidator{err: application.ErrUnauthorized}
	router := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Protect(router, validator, nil, "/sessions")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public path to bypass auth, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/current", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected nested path to require auth, got %d", rec.Code)
	}
	if len(validator.tokens) != 0 {
		t.Fatalf("expected validator not to be called without a token, got %v", validator.tokens)
	}
}

func TestRequestLoggerAttachesLogger(t *testing.T) {
	t.Parallel()

	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Errorf("expected logger on context")
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}
