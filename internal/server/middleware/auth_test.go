package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/LegacyAung/chat-app/internal/server/middleware"
	"github.com/LegacyAung/chat-app/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func signToken(t *testing.T, subject, username string, expires time.Time) string {
	t.Helper()
	claims := middleware.AppClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// authChain builds the metadata+auth pipeline around a handler that records
// the resolved identity.
func authChain(cfg config.AuthConfig, gotMeta *middleware.RequestMetadata) http.Handler {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqMeta, ok := middleware.ReqMetadataFrom(r.Context()); ok {
			*gotMeta = *reqMeta
		}
		w.WriteHeader(http.StatusOK)
	})
	return middleware.Chain(final,
		middleware.RequestMetadataMiddleware(),
		middleware.NewAuthMiddleware(newTestLogger(), cfg),
	)
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	var gotMeta middleware.RequestMetadata
	handler := authChain(config.AuthConfig{Enabled: false}, &gotMeta)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got status %d", rec.Code)
	}
	if gotMeta.UserID != "" {
		t.Errorf("identity should stay empty when auth is off, got %q", gotMeta.UserID)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	var gotMeta middleware.RequestMetadata
	handler := authChain(config.AuthConfig{Enabled: true, JWTSecret: testSecret}, &gotMeta)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthAcceptsTokenFromCookie(t *testing.T) {
	var gotMeta middleware.RequestMetadata
	handler := authChain(config.AuthConfig{Enabled: true, JWTSecret: testSecret}, &gotMeta)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{
		Name:  "session-token",
		Value: signToken(t, "user-42", "alice", time.Now().Add(time.Hour)),
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotMeta.UserID != "user-42" || gotMeta.Username != "alice" {
		t.Errorf("claims not propagated: %+v", gotMeta)
	}
}

func TestAuthAcceptsTokenFromQueryParam(t *testing.T) {
	var gotMeta middleware.RequestMetadata
	handler := authChain(config.AuthConfig{Enabled: true, JWTSecret: testSecret}, &gotMeta)

	token := signToken(t, "user-42", "alice", time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotMeta.UserID != "user-42" {
		t.Errorf("subject not propagated, got %q", gotMeta.UserID)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	var gotMeta middleware.RequestMetadata
	handler := authChain(config.AuthConfig{Enabled: true, JWTSecret: testSecret}, &gotMeta)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42", "alice", time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	var gotMeta middleware.RequestMetadata
	handler := authChain(config.AuthConfig{Enabled: true, JWTSecret: "a-different-secret"}, &gotMeta)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42", "alice", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
}
