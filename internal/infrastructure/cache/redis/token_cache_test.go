package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/google/uuid"
)

var _ port.TokenCache = (*TokenCache)(nil)

// newTestCache connects to REDIS_TEST_ADDR (host:port); the test is skipped without it.
func newTestCache(t *testing.T) *TokenCache {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR is not set")
	}
	host, portNum, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("invalid REDIS_TEST_ADDR: %v", err)
	}

	cache, err := NewTokenCache(Options{
		Host:      host,
		Port:      portNum,
		KeyPrefix: "test:" + uuid.NewString() + ":",
	})
	if err != nil {
		t.Fatalf("NewTokenCache() error = %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestTokenCache_RoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "ingest"); !errors.Is(err, port.ErrTokenNotFound) {
		t.Fatalf("Get() on empty cache error = %v, want ErrTokenNotFound", err)
	}

	now := time.Now().Truncate(time.Second)
	token := port.AccessToken{Value: "abc", Type: "Bearer", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := cache.Set(ctx, "ingest", token); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := cache.Get(ctx, "ingest")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Value != "abc" || !got.ExpiresAt.Equal(token.ExpiresAt) {
		t.Errorf("Get() = %+v, want %+v", got, token)
	}

	if err := cache.Delete(ctx, "ingest"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := cache.Get(ctx, "ingest"); !errors.Is(err, port.ErrTokenNotFound) {
		t.Errorf("Get() after Delete error = %v", err)
	}
}

func TestTokenCache_ExpiredTokenIsNotStored(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	expired := port.AccessToken{Value: "old", ExpiresAt: time.Now().Add(-time.Second)}
	if err := cache.Set(ctx, "ingest", expired); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := cache.Get(ctx, "ingest"); !errors.Is(err, port.ErrTokenNotFound) {
		t.Errorf("expired token was stored, err = %v", err)
	}
}
