package port

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned on a cache miss.
var ErrTokenNotFound = errors.New("token not found")

// AccessToken is a bearer credential issued by the ingestion service.
type AccessToken struct {
	Value     string    `json:"token"`
	Type      string    `json:"tokenType"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the token can still be used at now, keeping leeway in reserve.
// The leeway never exceeds half of the token lifetime.
func (t AccessToken) Valid(now time.Time, leeway time.Duration) bool {
	if t.Value == "" {
		return false
	}
	if lifetime := t.ExpiresAt.Sub(t.IssuedAt); lifetime > 0 && leeway > lifetime/2 {
		leeway = lifetime / 2
	}
	return now.Add(leeway).Before(t.ExpiresAt)
}

// TTL returns how long the token stays valid after now.
func (t AccessToken) TTL(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}

// TokenCache defines the interface for storing access tokens between calls
type TokenCache interface {
	// Get retrieves a token; ErrTokenNotFound on miss
	Get(ctx context.Context, key string) (AccessToken, error)

	// Set stores a token until its expiry
	Set(ctx context.Context, key string, token AccessToken) error

	// Delete removes a token
	Delete(ctx context.Context, key string) error
}
