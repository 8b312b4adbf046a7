package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/cache/memory"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	authPath     = "auth/token"
	registerPath = "session/init"

	maxErrorBodyBytes  = 4 << 10
	maxResponseBytes   = 1 << 20
	defaultTokenTTL    = 5 * time.Minute
	defaultTokenLeeway = 30 * time.Second
	defaultTimeout     = 30 * time.Second
)

// AuthHeaderMode selects how the access token is attached to authorized calls.
type AuthHeaderMode string

const (
	AuthHeaderBearer AuthHeaderMode = "bearer"
	AuthHeaderIngest AuthHeaderMode = "ingest"

	ingestTokenHeader = "Ingest-Token"
)

// Config holds ingest client settings.
type Config struct {
	BaseURL     string
	KeyID       string
	Secret      string
	AuthHeader  AuthHeaderMode
	Timeout     time.Duration
	Gzip        bool
	TokenLeeway time.Duration
	UserAgent   string
	HTTPClient  *http.Client
}

// Client talks to the ingestion service. It implements port.IngestClient.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	credentials Credentials
	authHeader  AuthHeaderMode
	gzip        bool
	leeway      time.Duration
	userAgent   string

	tokens   port.TokenCache
	tokenKey string
	flight   singleflight.Group

	metrics port.PipelineMetrics
	now     func() time.Time
	logger  *logger.Logger
}

// NewClient validates the configuration. A missing key pair is allowed and
// surfaces as ErrMissingCredentials on every call; a malformed one is rejected here.
func NewClient(cfg Config, tokens port.TokenCache, metrics port.PipelineMetrics, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ingest base url %q", cfg.BaseURL)
	}

	credentials, err := NewCredentials(cfg.KeyID, cfg.Secret)
	if err != nil && !errors.Is(err, ErrMissingCredentials) {
		return nil, err
	}

	switch cfg.AuthHeader {
	case "":
		cfg.AuthHeader = AuthHeaderBearer
	case AuthHeaderBearer, AuthHeaderIngest:
	default:
		return nil, fmt.Errorf("unsupported auth header mode %q", cfg.AuthHeader)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TokenLeeway <= 0 {
		cfg.TokenLeeway = defaultTokenLeeway
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "session-telemetry/1.0"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if tokens == nil {
		tokens = memory.NewTokenCache()
	}
	if metrics == nil {
		metrics = port.NopPipelineMetrics{}
	}

	return &Client{
		baseURL:     base,
		httpClient:  cfg.HTTPClient,
		credentials: credentials,
		authHeader:  cfg.AuthHeader,
		gzip:        cfg.Gzip,
		leeway:      cfg.TokenLeeway,
		userAgent:   cfg.UserAgent,
		tokens:      tokens,
		tokenKey:    "ingest:token:" + credentials.KeyID(),
		metrics:     metrics,
		now:         time.Now,
		logger:      log,
	}, nil
}

// HasCredentials reports whether a key pair is configured.
func (c *Client) HasCredentials() bool {
	return !c.credentials.IsZero()
}

func (c *Client) RegisterSession(ctx context.Context, metadata entity.SessionMetadata) (string, error) {
	const op = "register session"

	body := registerRequest{
		Executable: metadata.Executable,
		Device:     metadata.Device,
		StartedAt:  metadata.StartedAt,
	}

	var resp registerResponse
	if err := c.doAuthorized(ctx, op, registerPath, body, http.StatusOK, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.SessionID) == "" {
		return "", fmt.Errorf("%s: %w: empty sessionId", op, ErrInvalidResponse)
	}

	return resp.SessionID, nil
}

func (c *Client) UploadEntries(ctx context.Context, remoteSessionID string, entries []entity.Entry) error {
	const op = "upload entries"

	if strings.TrimSpace(remoteSessionID) == "" {
		return &UnderlyingError{Op: op, Err: errors.New("remote session id is required")}
	}

	logs, events := entity.PartitionEntries(entries)
	body := entriesRequest{Logs: logs, Events: events}

	p := "session/" + url.PathEscape(remoteSessionID) + "/entries"
	return c.doAuthorized(ctx, op, p, body, http.StatusAccepted, nil)
}

func (c *Client) doAuthorized(ctx context.Context, op, p string, body any, expected int, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &UnderlyingError{Op: op, Err: fmt.Errorf("failed to encode body: %w", err)}
	}

	req, err := c.newRequest(ctx, p, payload)
	if err != nil {
		return &UnderlyingError{Op: op, Err: err}
	}
	c.setToken(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken(ctx, token)
	}
	if resp.StatusCode != expected {
		return unexpectedStatus(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidResponse, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, p string, payload []byte) (*http.Request, error) {
	target := c.baseURL.JoinPath(p)

	encoding := ""
	if c.gzip {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to compress body: %w", err)
		}
		payload = compressed
		encoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	return req, nil
}

func (c *Client) setToken(req *http.Request, token port.AccessToken) {
	if c.authHeader == AuthHeaderIngest {
		req.Header.Set(ingestTokenHeader, token.Value)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
}

func unexpectedStatus(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &UnexpectedStatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}
