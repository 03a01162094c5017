package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func userRequest(userID int) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/user/friends", nil)
	if userID == 0 {
		return req
	}
	ctx := context.WithValue(req.Context(), UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestRateLimitUserBlocksAfterLimit(t *testing.T) {
	h := RateLimitUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < rateLimitMaxUser; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, userRequest(4242))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d blocked early: %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, userRequest(4242))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit request = %d, want 429", rec.Code)
	}

	// The window is keyed per user, other users are unaffected.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, userRequest(4243))
	if rec.Code != http.StatusOK {
		t.Fatalf("other user blocked: %d", rec.Code)
	}
}

func TestRateLimitUserSkipsAnonymous(t *testing.T) {
	h := RateLimitUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, userRequest(0))
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous request = %d, want 200", rec.Code)
	}
}
