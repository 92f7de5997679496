package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSimpleRateLimiter_Allow(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := newSimpleRateLimiter(2, time.Minute, clock)

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatal("expected first two requests to pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("expected third request to be throttled")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatal("expected separate keys to have separate budgets")
	}

	// Window expiry resets the budget.
	now = now.Add(61 * time.Second)
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("expected budget reset after window")
	}
}

func TestSimpleRateLimiter_DisabledOnInvalidConfig(t *testing.T) {
	if newSimpleRateLimiter(0, time.Minute, nil) != nil {
		t.Fatal("expected nil limiter for zero limit")
	}
	if newSimpleRateLimiter(10, 0, nil) != nil {
		t.Fatal("expected nil limiter for zero window")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/menu", nil)
	req.RemoteAddr = "192.0.2.10:51234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}
