package logger

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dreschagin/session-telemetry/internal/application/port"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []port.LogEntry
}

func (p *recordingPublisher) Publish(ctx context.Context, entry port.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, entry)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, entries []port.LogEntry) error {
	for _, entry := range entries {
		_ = p.Publish(ctx, entry)
	}
	return nil
}

func (p *recordingPublisher) Flush(ctx context.Context) error {
	return nil
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("warning", &buf)

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("shown", "session_id", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("lines below level must be dropped: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown | session_id=abc") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestLogger_ForwardsToPublisher(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)
	publisher := &recordingPublisher{}
	log.SetLogPublisher(publisher)

	log.Info("Session started", "session_id", "abc", "dangling")
	log.Debug("filtered")

	if len(publisher.entries) != 1 {
		t.Fatalf("expected 1 forwarded entry, got %d", len(publisher.entries))
	}
	entry := publisher.entries[0]
	if entry.Level != port.LogLevelInfo || entry.Message != "Session started" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Fields["session_id"] != "abc" || len(entry.Fields) != 1 {
		t.Errorf("unexpected fields %v", entry.Fields)
	}

	log.SetLogPublisher(nil)
	log.Info("not forwarded")
	if len(publisher.entries) != 1 {
		t.Error("publisher must be detached")
	}
}
