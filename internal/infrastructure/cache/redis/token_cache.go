package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/redis/go-redis/v9"
)

// TokenCache shares access tokens between agent processes through Redis.
type TokenCache struct {
	client    *redis.Client
	keyPrefix string
}

// Options holds Redis connection settings.
type Options struct {
	Host         string
	Port         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewTokenCache connects to Redis and verifies the connection.
func NewTokenCache(opts Options) (*TokenCache, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		MaxRetries:   3,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &TokenCache{
		client:    client,
		keyPrefix: opts.KeyPrefix,
	}, nil
}

// Get retrieves a token from Redis
func (c *TokenCache) Get(ctx context.Context, key string) (port.AccessToken, error) {
	val, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return port.AccessToken{}, port.ErrTokenNotFound
	}
	if err != nil {
		return port.AccessToken{}, fmt.Errorf("failed to get token from cache: %w", err)
	}

	var token port.AccessToken
	if err := json.Unmarshal([]byte(val), &token); err != nil {
		return port.AccessToken{}, fmt.Errorf("failed to unmarshal cached token: %w", err)
	}

	return token, nil
}

// Set stores a token with a TTL matching its expiry
func (c *TokenCache) Set(ctx context.Context, key string, token port.AccessToken) error {
	ttl := token.TTL(time.Now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token in cache: %w", err)
	}

	return nil
}

// Delete removes a token from Redis
func (c *TokenCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token from cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *TokenCache) Close() error {
	return c.client.Close()
}
