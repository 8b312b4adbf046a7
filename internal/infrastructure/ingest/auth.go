package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/port"
)

// token returns a valid access token, authenticating when none is cached.
// Concurrent callers share a single in-flight authentication.
func (c *Client) token(ctx context.Context) (port.AccessToken, error) {
	if token, ok := c.cachedToken(ctx); ok {
		return token, nil
	}

	value, err, _ := c.flight.Do(c.tokenKey, func() (interface{}, error) {
		if token, ok := c.cachedToken(ctx); ok {
			return token, nil
		}

		token, err := c.authenticate(ctx)
		if err != nil {
			return port.AccessToken{}, err
		}

		if err := c.tokens.Set(ctx, c.tokenKey, token); err != nil {
			c.logger.Warn("Failed to cache access token", "error", err.Error())
		}
		return token, nil
	})
	if err != nil {
		return port.AccessToken{}, err
	}

	return value.(port.AccessToken), nil
}

func (c *Client) cachedToken(ctx context.Context) (port.AccessToken, bool) {
	token, err := c.tokens.Get(ctx, c.tokenKey)
	if err != nil {
		if !errors.Is(err, port.ErrTokenNotFound) {
			c.logger.Warn("Token cache lookup failed", "error", err.Error())
		}
		return port.AccessToken{}, false
	}
	if !token.Valid(c.now(), c.leeway) {
		return port.AccessToken{}, false
	}
	return token, true
}

func (c *Client) invalidateToken(ctx context.Context, rejected port.AccessToken) {
	current, err := c.tokens.Get(ctx, c.tokenKey)
	if err != nil || current.Value != rejected.Value {
		return
	}
	if err := c.tokens.Delete(ctx, c.tokenKey); err != nil {
		c.logger.Warn("Failed to drop rejected access token", "error", err.Error())
		return
	}
	c.logger.Info("Access token rejected, will re-authenticate")
}

func (c *Client) authenticate(ctx context.Context) (port.AccessToken, error) {
	const op = "authenticate"

	if c.credentials.IsZero() {
		return port.AccessToken{}, ErrMissingCredentials
	}

	c.metrics.AuthRequested()

	req, err := c.newRequest(ctx, authPath, []byte("{}"))
	if err != nil {
		return port.AccessToken{}, &UnderlyingError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", c.credentials.basicAuth())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UploadFailed(port.OperationAuth)
		return port.AccessToken{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UploadFailed(port.OperationAuth)
		return port.AccessToken{}, unexpectedStatus(op, resp)
	}

	var body tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return port.AccessToken{}, fmt.Errorf("%s: %w: %v", op, ErrInvalidResponse, err)
	}
	if strings.TrimSpace(body.Token) == "" {
		return port.AccessToken{}, fmt.Errorf("%s: %w: empty token", op, ErrInvalidResponse)
	}
	if body.TokenType != "" && !strings.EqualFold(body.TokenType, "bearer") {
		c.logger.Debug("Ingest service issued non-bearer token type", "token_type", body.TokenType)
	}

	ttl := time.Duration(body.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	c.logger.Debug("Access token issued", "expires_in", ttl.String())

	issuedAt := c.now()
	return port.AccessToken{
		Value:     body.Token,
		Type:      body.TokenType,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}, nil
}
