package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/port"
)

// TokenCache keeps access tokens in process memory.
type TokenCache struct {
	mu     sync.RWMutex
	tokens map[string]port.AccessToken
	now    func() time.Time
}

// NewTokenCache creates an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens: make(map[string]port.AccessToken),
		now:    time.Now,
	}
}

// Get returns the token for key, or port.ErrTokenNotFound if absent or expired.
func (c *TokenCache) Get(_ context.Context, key string) (port.AccessToken, error) {
	c.mu.RLock()
	token, ok := c.tokens[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(token.ExpiresAt) {
		return port.AccessToken{}, port.ErrTokenNotFound
	}
	return token, nil
}

// Set stores the token for key.
func (c *TokenCache) Set(_ context.Context, key string, token port.AccessToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokens[key] = token
	return nil
}

// Delete removes the token for key.
func (c *TokenCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tokens, key)
	return nil
}
