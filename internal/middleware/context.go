package middleware

import (
	"context"

	"github.com/R-koma/calendar-chat/internal/token"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	ClaimsKey contextKey = "claims"
)

// GetUserID returns the authenticated user id from the context, 0 if absent.
func GetUserID(ctx context.Context) int {
	v, _ := ctx.Value(UserIDKey).(int)
	return v
}

// GetClaims returns the parsed token claims, nil if absent.
func GetClaims(ctx context.Context) *token.Claims {
	v, _ := ctx.Value(ClaimsKey).(*token.Claims)
	return v
}
