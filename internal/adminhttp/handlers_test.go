package adminhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coolcache/internal/keyspace"
)

func TestHealthzHandlerReportsAlive(t *testing.T) {
	h := NewHandlerSet(Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.HealthzHandler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatsHandlerReportsKeyCount(t *testing.T) {
	store := keyspace.NewStore()
	if _, err := store.Set("a", []byte("1"), keyspace.SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	h := NewHandlerSet(Options{Store: store})
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rec := httptest.NewRecorder()
	h.StatsHandler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBGSaveHandlerRequiresAuth(t *testing.T) {
	h := NewHandlerSet(Options{AdminToken: "topsecret"})
	req := httptest.NewRequest(http.MethodPost, "/admin/bgsave", nil)
	rec := httptest.NewRecorder()
	h.BGSaveHandler()(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestBGSaveHandlerRejectsWrongMethod(t *testing.T) {
	h := NewHandlerSet(Options{AdminToken: "topsecret"})
	req := httptest.NewRequest(http.MethodGet, "/admin/bgsave", nil)
	rec := httptest.NewRecorder()
	h.BGSaveHandler()(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestBGSaveHandlerAcceptsSignedHS256Token(t *testing.T) {
	fixedNow := time.Unix(1700000000, 0)
	h := NewHandlerSet(Options{
		AdminToken: "hs256:topsecret",
		TimeSource: func() time.Time { return fixedNow },
	})
	token := makeHS256Token(t, "topsecret", "operator-1", fixedNow.Add(time.Minute))
	req := httptest.NewRequest(http.MethodPost, "/admin/bgsave", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.BGSaveHandler()(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		// Snapshot manager isn't wired in this test; reaching past auth is
		// exactly what's under test, so the "persistence not enabled" 503
		// (not 401) confirms the signed token was accepted.
		t.Fatalf("expected 503 (auth passed, no snapshot manager), got %d", rec.Code)
	}
}

func TestBGSaveHandlerRejectsExpiredHS256Token(t *testing.T) {
	fixedNow := time.Unix(1700000000, 0)
	h := NewHandlerSet(Options{
		AdminToken: "hs256:topsecret",
		TimeSource: func() time.Time { return fixedNow },
	})
	token := makeHS256Token(t, "topsecret", "operator-1", fixedNow.Add(-time.Minute))
	req := httptest.NewRequest(http.MethodPost, "/admin/bgsave", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.BGSaveHandler()(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func makeHS256Token(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(expires.Add(-time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestBGSaveHandlerRateLimited(t *testing.T) {
	limiter := NewBGSaveLimiter(time.Minute, 1, nil)
	limiter.Allow() // consume the one permitted slot
	h := NewHandlerSet(Options{AdminToken: "topsecret", RateLimiter: limiter})
	req := httptest.NewRequest(http.MethodPost, "/admin/bgsave", nil)
	req.Header.Set("X-Admin-Token", "topsecret")
	rec := httptest.NewRecorder()
	h.BGSaveHandler()(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
