package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/dreschagin/session-telemetry/pkg/config"
	"github.com/dreschagin/session-telemetry/pkg/logger"
)

// fakeIngest - минимальный сервер приема телеметрии
type fakeIngest struct {
	uploadStatus atomic.Int32
	registered   atomic.Int32

	mu       sync.Mutex
	messages []string
	events   []string
}

func newFakeIngest(t *testing.T) (*fakeIngest, *httptest.Server) {
	f := &fakeIngest{}
	f.uploadStatus.Store(http.StatusAccepted)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "t", "expiresIn": 3600, "tokenType": "Bearer"})
	})
	mux.HandleFunc("POST /session/init", func(w http.ResponseWriter, r *http.Request) {
		f.registered.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": "remote-1"})
	})
	mux.HandleFunc("POST /session/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
		status := int(f.uploadStatus.Load())
		if status != http.StatusAccepted {
			w.WriteHeader(status)
			return
		}

		var body struct {
			Logs []struct {
				Message string `json:"message"`
			} `json:"logs"`
			Events []struct {
				Name string `json:"name"`
			} `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		for _, l := range body.Logs {
			f.messages = append(f.messages, l.Message)
		}
		for _, e := range body.Events {
			f.events = append(f.events, e.Name)
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeIngest) received() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...), append([]string(nil), f.events...)
}

func testConfig(serverURL, dataDir string) *config.Config {
	return &config.Config{
		LogLevel: "error",
		Ingest: config.IngestConfig{
			URL:        serverURL,
			KeyID:      "key",
			Secret:     "secret",
			AuthHeader: "bearer",
			Timeout:    5 * time.Second,
		},
		Storage: config.StorageConfig{
			DataDir:          dataDir,
			MaxFileBytes:     1 << 20,
			UrgencyThreshold: 1.0,
		},
		Scheduler: config.SchedulerConfig{
			SendInterval:          time.Hour,
			FlushThreshold:        100,
			EarlySendMinInterval:  time.Second,
			MaxConcurrentSessions: 2,
		},
		NATS: config.NATSConfig{SubjectPrefix: "telemetry"},
		S3:   config.S3Config{KeyPrefix: "batches"},
	}
}

func TestAgent_CloseSendsBufferedEntries(t *testing.T) {
	ingest, server := newFakeIngest(t)
	agent, err := New(testConfig(server.URL, t.TempDir()), logger.New("error"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := agent.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !agent.Log(valueobject.LevelInfo, "hello") {
		t.Fatal("Log() rejected a valid entry")
	}
	if !agent.Event("opened", map[string]string{"screen": "main"}, nil) {
		t.Fatal("Event() rejected a valid entry")
	}
	if agent.Event("", nil, nil) {
		t.Error("Event() accepted an empty name")
	}

	if err := agent.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	messages, events := ingest.received()
	if len(messages) != 1 || messages[0] != "hello" {
		t.Errorf("messages = %v, want [hello]", messages)
	}
	if len(events) != 1 || events[0] != "opened" {
		t.Errorf("events = %v, want [opened]", events)
	}
	if ingest.registered.Load() != 1 {
		t.Errorf("registered %d times, want 1", ingest.registered.Load())
	}
	if agent.Submit(nil) {
		t.Error("Submit() after Close accepted an entry")
	}
}

func TestAgent_UndeliveredEntriesDrainLater(t *testing.T) {
	ingest, server := newFakeIngest(t)
	ingest.uploadStatus.Store(http.StatusServiceUnavailable)

	dataDir := t.TempDir()
	cfg := testConfig(server.URL, dataDir)
	log := logger.New("error")

	agent, err := New(cfg, log)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	agent.Log(valueobject.LevelWarning, "kept on disk")
	_ = agent.Close(context.Background())

	if messages, _ := ingest.received(); len(messages) != 0 {
		t.Fatalf("unexpected delivery: %v", messages)
	}

	ingest.uploadStatus.Store(http.StatusAccepted)
	result, err := DrainSaved(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("DrainSaved() error = %v", err)
	}
	if result.Drained != 1 {
		t.Errorf("Drained = %d, want 1", result.Drained)
	}

	messages, _ := ingest.received()
	if len(messages) != 1 || messages[0] != "kept on disk" {
		t.Errorf("messages = %v", messages)
	}
}

func TestAgent_Status(t *testing.T) {
	_, server := newFakeIngest(t)
	agent, err := New(testConfig(server.URL, t.TempDir()), logger.New("error"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = agent.Close(context.Background()) })

	agent.Log(valueobject.LevelDebug, "queued")
	status := agent.Status()
	if status.Status != StatusOK || status.QueueDepth != 1 || status.SessionID != agent.SessionID() {
		t.Errorf("unexpected status: %+v", status)
	}

	if err := agent.OnSuspend(context.Background()); err != nil {
		t.Fatalf("OnSuspend() error = %v", err)
	}
	status = agent.Status()
	if status.Status != StatusSuspended || status.QueueDepth != 0 {
		t.Errorf("unexpected status after suspend: %+v", status)
	}

	agent.OnResume()
	if agent.Status().Status == StatusSuspended {
		t.Error("agent still suspended after resume")
	}
}

func TestNew_RejectsMalformedCredentials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", t.TempDir())
	cfg.Ingest.KeyID = "bad:key"

	if _, err := New(cfg, logger.New("error")); err == nil {
		t.Fatal("expected error for key id with a colon")
	}
}
