package token

import (
	"context"
	"sync"
	"time"
)

// RevokedTokenCache remembers logged-out access tokens by jti until they would have expired anyway.
type RevokedTokenCache interface {
	Add(ctx context.Context, jti string, exp time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// InMemoryRevokedTokenCache keeps revoked jtis for a single process.
// Entries past their expiry are dropped on the next Add.
type InMemoryRevokedTokenCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewInMemoryRevokedTokenCache() *InMemoryRevokedTokenCache {
	return &InMemoryRevokedTokenCache{entries: map[string]time.Time{}, now: time.Now}
}

func (c *InMemoryRevokedTokenCache) Add(_ context.Context, jti string, exp time.Time) error {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, until := range c.entries {
		if !now.Before(until) {
			delete(c.entries, id)
		}
	}
	if now.Before(exp) {
		c.entries[jti] = exp
	}
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(_ context.Context, jti string) (bool, error) {
	c.mu.RLock()
	until, ok := c.entries[jti]
	c.mu.RUnlock()
	return ok && c.now().Before(until), nil
}

// Len counts the jtis currently held.
func (c *InMemoryRevokedTokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
