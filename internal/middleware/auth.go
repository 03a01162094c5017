package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/storage"
	"github.com/R-koma/calendar-chat/internal/token"
)

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}

// Auth validates the access token cookie, rejects revoked tokens and puts
// the user id and claims into the request context.
func Auth(tm *token.Manager, store storage.TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(token.AccessCookie)
			if err != nil {
				unauthorized(w, "Missing access token")
				return
			}
			claims, err := tm.Parse(cookie.Value)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}
			revoked, err := store.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				// Storage trouble must not silently admit a revoked token.
				logger.Errorf("auth: revocation check: %v", err)
				unauthorized(w, "Invalid or expired token")
				return
			}
			if revoked {
				unauthorized(w, "Token has been revoked")
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRF enforces the double-submit check on state-changing requests: the
// X-CSRF-TOKEN header must match the csrf claim inside the access token.
// Runs after Auth, which put the claims into the context.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			claims := GetClaims(r.Context())
			if claims == nil || r.Header.Get(token.CSRFHeader) != claims.CSRF {
				unauthorized(w, "Missing or invalid CSRF token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
