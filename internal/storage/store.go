package storage

import (
	"context"
	"time"
)

// TokenStore records revoked access tokens (by jti) until they expire, so a
// logged-out cookie cannot be replayed. Implementations: redis.Client,
// memory.Client (for -dev without Redis).
type TokenStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Close() error
}
