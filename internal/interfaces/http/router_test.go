package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dreschagin/session-telemetry/internal/application/dto"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/session-telemetry/internal/interfaces/http/handler"
	"github.com/dreschagin/session-telemetry/pkg/config"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
)

const testToken = "test-token"

type memoryPipeline struct {
	mu        sync.Mutex
	entries   []entity.Entry
	suspended bool
}

func (p *memoryPipeline) Submit(entry entity.Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return true
}

func (p *memoryPipeline) OnSuspend(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = true
	return nil
}

func (p *memoryPipeline) OnResume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = false
}

func (p *memoryPipeline) Status() dto.AgentStatusDTO {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := "ok"
	if p.suspended {
		status = "suspended"
	}
	return dto.AgentStatusDTO{Status: status, QueueDepth: len(p.entries)}
}

func newTestServer(t *testing.T) (*httptest.Server, *memoryPipeline) {
	t.Helper()

	log := logger.New("error")
	pipeline := &memoryPipeline{}
	registry := prometheus.NewRegistry()

	router := NewRouter(
		handler.NewTelemetryHandler(pipeline, log),
		metrics.New(registry),
		registry,
		config.ServerConfig{MaxBodyBytes: 1 << 20},
		config.SecurityConfig{
			AuthEnabled:    true,
			AuthToken:      testToken,
			RateLimitRPS:   100,
			RateLimitBurst: 100,
		},
		log,
	)
	t.Cleanup(router.Close)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server, pipeline
}

func doRequest(t *testing.T, method, url string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouter_ProbesAreOpen(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := doRequest(t, http.MethodGet, server.URL+path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestRouter_SubmitRequiresToken(t *testing.T) {
	server, pipeline := newTestServer(t)
	body := `[{"type":"event","value":{"name":"opened"}}]`

	resp := doRequest(t, http.MethodPost, server.URL+"/api/v1/entries", strings.NewReader(body), nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, server.URL+"/api/v1/entries", strings.NewReader(body), map[string]string{
		"Authorization": "Bearer " + testToken,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status with token = %d", resp.StatusCode)
	}
	if len(pipeline.entries) != 1 {
		t.Errorf("pipeline got %d entries", len(pipeline.entries))
	}
}

func TestRouter_GzipSubmit(t *testing.T) {
	server, pipeline := newTestServer(t)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(`{"type":"log","value":{"level":"warning","message":"disk low"}}`))
	_ = gz.Close()

	resp := doRequest(t, http.MethodPost, server.URL+"/api/v1/entries", &buf, map[string]string{
		"Authorization":    "Bearer " + testToken,
		"Content-Encoding": "gzip",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result dto.SubmitResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Accepted != 1 || len(pipeline.entries) != 1 {
		t.Errorf("result = %+v, entries = %d", result, len(pipeline.entries))
	}
}

func TestRouter_Lifecycle(t *testing.T) {
	server, pipeline := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + testToken}

	resp := doRequest(t, http.MethodPost, server.URL+"/api/v1/lifecycle/suspend", nil, auth)
	if resp.StatusCode != http.StatusNoContent || !pipeline.suspended {
		t.Fatalf("suspend status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/readyz", nil, nil)
	var status dto.AgentStatusDTO
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "suspended" {
		t.Errorf("readyz status = %q", status.Status)
	}

	resp = doRequest(t, http.MethodPost, server.URL+"/api/v1/lifecycle/resume", nil, auth)
	if resp.StatusCode != http.StatusNoContent || pipeline.suspended {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/lifecycle/resume", nil, auth)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET resume status = %d", resp.StatusCode)
	}
}
