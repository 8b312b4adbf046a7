package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/persistence/filesystem"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
)

func newRepoWithSession(t *testing.T) (*filesystem.Repository, uuid.UUID) {
	t.Helper()

	repo, err := filesystem.NewRepository(t.TempDir(), filesystem.Options{}, logger.New("error"))
	if err != nil {
		t.Fatal(err)
	}

	id := uuid.New()
	store := repo.Store(id)
	ctx := context.Background()

	metadata := entity.NewSessionMetadata(entity.Device{}, entity.Executable{Name: "app"}).WithRemoteIdentifier("remote-9")
	if err := store.SaveMetadata(ctx, metadata); err != nil {
		t.Fatal(err)
	}

	log, err := entity.NewLog(valueobject.LevelError, "crash", entity.SourceLocation{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendEntries(ctx, []entity.Entry{log}); err != nil {
		t.Fatal(err)
	}
	return repo, id
}

func TestListSessions(t *testing.T) {
	repo, id := newRepoWithSession(t)

	var out bytes.Buffer
	if err := listSessions(context.Background(), repo, &out); err != nil {
		t.Fatalf("listSessions() error = %v", err)
	}

	text := out.String()
	if !strings.Contains(text, id.String()) || !strings.Contains(text, "remote-9") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

func TestInspectSession(t *testing.T) {
	repo, id := newRepoWithSession(t)

	var out bytes.Buffer
	if err := inspectSession(context.Background(), repo, id, true, &out); err != nil {
		t.Fatalf("inspectSession() error = %v", err)
	}

	var result inspectOutput
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	// Ошибка запечатывает файл сразу
	if len(result.Outfiles) != 1 || result.Outfiles[0].Entries != 1 || len(result.Outfiles[0].Content) != 1 {
		t.Errorf("unexpected outfiles: %+v", result.Outfiles)
	}
	if result.Metadata == nil || result.Metadata.RemoteIdentifier != "remote-9" {
		t.Errorf("unexpected metadata: %+v", result.Metadata)
	}

	if err := inspectSession(context.Background(), repo, uuid.New(), false, &out); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestSubmit(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/entries" || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var envelope struct {
			Type string `json:"type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&envelope)
		received = envelope.Type

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"accepted":1,"rejected":0}`))
	}))
	defer server.Close()

	agentAddr, agentToken = server.URL, "tok"
	t.Cleanup(func() { agentAddr, agentToken = "http://localhost:8090", "" })

	event, _ := entity.NewEvent("deploy")
	var out bytes.Buffer
	if err := submit(context.Background(), &out, event); err != nil {
		t.Fatalf("submit() error = %v", err)
	}
	if received != "event" || !strings.Contains(out.String(), event.ID) {
		t.Errorf("received %q, output %q", received, out.String())
	}

	agentToken = "wrong"
	if err := submit(context.Background(), &out, event); err == nil {
		t.Error("expected error on 401")
	}
}
