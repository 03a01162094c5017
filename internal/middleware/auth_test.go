package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R-koma/calendar-chat/internal/storage/memory"
	"github.com/R-koma/calendar-chat/internal/token"
)

func authedRequest(t *testing.T, tm *token.Manager, userID int) (*http.Request, string) {
	t.Helper()
	access, csrf, err := tm.Mint(userID)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/user/friends", nil)
	req.AddCookie(&http.Cookie{Name: token.AccessCookie, Value: access})
	return req, csrf
}

func TestAuthPutsUserIntoContext(t *testing.T) {
	tm := token.NewManager("test-secret", time.Hour)
	store := memory.New()

	var gotUserID int
	h := Auth(tm, store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
	}))

	req, _ := authedRequest(t, tm, 42)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != 42 {
		t.Fatalf("user id = %d, want 42", gotUserID)
	}
}

func TestAuthRejectsMissingCookie(t *testing.T) {
	tm := token.NewManager("test-secret", time.Hour)
	h := Auth(tm, memory.New())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/friends", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsRevokedToken(t *testing.T) {
	tm := token.NewManager("test-secret", time.Hour)
	store := memory.New()

	access, _, err := tm.Mint(1)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	claims, err := tm.Parse(access)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := store.Revoke(context.Background(), claims.ID, time.Hour); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	h := Auth(tm, store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a revoked token")
	}))
	req := httptest.NewRequest(http.MethodGet, "/user/friends", nil)
	req.AddCookie(&http.Cookie{Name: token.AccessCookie, Value: access})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCSRFRequiresMatchingHeaderOnMutation(t *testing.T) {
	tm := token.NewManager("test-secret", time.Hour)
	store := memory.New()

	var ran bool
	h := Auth(tm, store)(CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	})))

	// POST without the header is rejected.
	req, _ := authedRequest(t, tm, 1)
	req.Method = http.MethodPost
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || ran {
		t.Fatalf("status = %d, ran = %v; want 401 without header", rec.Code, ran)
	}

	// Wrong header value is rejected.
	req2, _ := authedRequest(t, tm, 1)
	req2.Method = http.MethodPost
	req2.Header.Set(token.CSRFHeader, "wrong")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized || ran {
		t.Fatalf("status = %d; want 401 with wrong header", rec2.Code)
	}

	// The header matching the token's csrf claim passes.
	req3, csrf := authedRequest(t, tm, 1)
	req3.Method = http.MethodPost
	req3.Header.Set(token.CSRFHeader, csrf)
	rec3 := httptest.NewRecorder()
	h.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusOK || !ran {
		t.Fatalf("status = %d, ran = %v; want pass with matching header", rec3.Code, ran)
	}
}

func TestCSRFSkipsReads(t *testing.T) {
	tm := token.NewManager("test-secret", time.Hour)
	h := Auth(tm, memory.New())(CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req, _ := authedRequest(t, tm, 1) // GET, no CSRF header
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want GET to pass without header", rec.Code)
	}
}
