package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LegacyAung/chat-app/internal/server/middleware"
	"github.com/LegacyAung/chat-app/pkg/config"
)

// limiterChain wires the limiter behind metadata plus a stub that fills in
// the identity, as if the auth middleware had run.
func limiterChain(cfg config.ConnectionLimitConfig, userID string, counter middleware.UserConnectionCounter, cycler middleware.UserConnectionCycler) http.Handler {
	inject := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reqMeta, ok := middleware.ReqMetadataFrom(r.Context()); ok {
				reqMeta.UserID = userID
			}
			next.ServeHTTP(w, r)
		})
	}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return middleware.Chain(final,
		middleware.RequestMetadataMiddleware(),
		inject,
		middleware.NewConnectionLimiter(newTestLogger(), counter, cycler, cfg),
	)
}

func serve(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	return rec
}

func TestLimiterDisabledByDefault(t *testing.T) {
	handler := limiterChain(config.ConnectionLimitConfig{MaxPerUser: 0}, "alice",
		func(string) int { t.Error("counter must not be consulted when the limit is off"); return 0 },
		func(string) {},
	)
	if rec := serve(t, handler); rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestLimiterAllowsBelowLimit(t *testing.T) {
	handler := limiterChain(config.ConnectionLimitConfig{MaxPerUser: 3, Mode: "reject"}, "alice",
		func(string) int { return 2 },
		func(string) {},
	)
	if rec := serve(t, handler); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 below the limit, got %d", rec.Code)
	}
}

func TestLimiterRejectsAtLimit(t *testing.T) {
	handler := limiterChain(config.ConnectionLimitConfig{MaxPerUser: 3, Mode: "reject"}, "alice",
		func(string) int { return 3 },
		func(string) {},
	)
	if rec := serve(t, handler); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 at the limit, got %d", rec.Code)
	}
}

func TestLimiterCyclesOldestConnection(t *testing.T) {
	cycled := ""
	handler := limiterChain(config.ConnectionLimitConfig{MaxPerUser: 1, Mode: "cycle"}, "alice",
		func(string) int { return 1 },
		func(userID string) { cycled = userID },
	)
	rec := serve(t, handler)
	if rec.Code != http.StatusOK {
		t.Fatalf("cycle mode should admit the new connection, got %d", rec.Code)
	}
	if cycled != "alice" {
		t.Errorf("expected the user's oldest connection to be cycled, got %q", cycled)
	}
}

func TestLimiterSkipsAnonymousRequests(t *testing.T) {
	handler := limiterChain(config.ConnectionLimitConfig{MaxPerUser: 1, Mode: "reject"}, "",
		func(string) int { return 99 },
		func(string) {},
	)
	if rec := serve(t, handler); rec.Code != http.StatusOK {
		t.Fatalf("anonymous request should pass through, got %d", rec.Code)
	}
}
