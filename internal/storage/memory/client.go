package memory

import (
	"context"
	"sync"
	"time"
)

type item struct {
	exp time.Time
}

// Client is the in-memory TokenStore used in -dev mode. Revocations do not
// survive a restart, which is acceptable for development.
type Client struct {
	mu      sync.RWMutex
	revoked map[string]item
}

func New() *Client {
	return &Client{revoked: make(map[string]item)}
}

func (c *Client) Close() error { return nil }

func (c *Client) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = item{exp: time.Now().Add(ttl)}
	// Expired entries are reaped opportunistically on write.
	for k, v := range c.revoked {
		if time.Now().After(v.exp) {
			delete(c.revoked, k)
		}
	}
	return nil
}

func (c *Client) IsRevoked(ctx context.Context, jti string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.revoked[jti]
	if !ok || time.Now().After(v.exp) {
		return false, nil
	}
	return true, nil
}
