package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ingest.URL != "https://data.bintrail.com" {
		t.Errorf("Ingest.URL = %q", cfg.Ingest.URL)
	}
	if cfg.Storage.MaxFileBytes != 1<<20 || cfg.Storage.UrgencyThreshold != 1.0 {
		t.Errorf("unexpected rotation defaults %+v", cfg.Storage)
	}
	if cfg.Scheduler.SendInterval != 30*time.Second || cfg.Scheduler.FlushThreshold != 100 {
		t.Errorf("unexpected scheduler defaults %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.MaxConcurrentSessions != 2 {
		t.Errorf("MaxConcurrentSessions = %d", cfg.Scheduler.MaxConcurrentSessions)
	}
	if cfg.Server.Addr() != ":8090" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if cfg.NATS.Enabled || cfg.Redis.Enabled || cfg.S3.Enabled {
		t.Error("optional integrations must be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INGEST_AUTH_HEADER", "Ingest")
	t.Setenv("SEND_INTERVAL", "5s")
	t.Setenv("ROTATION_URGENCY_THRESHOLD", "0.5")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("STORAGE_SYNC_WRITES", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ingest.AuthHeader != "ingest" {
		t.Errorf("AuthHeader = %q", cfg.Ingest.AuthHeader)
	}
	if cfg.Scheduler.SendInterval != 5*time.Second {
		t.Errorf("SendInterval = %v", cfg.Scheduler.SendInterval)
	}
	if cfg.Storage.UrgencyThreshold != 0.5 || !cfg.Storage.SyncWrites {
		t.Errorf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("Redis.DB = %d", cfg.Redis.DB)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "auth without token", env: map[string]string{"AUTH_ENABLED": "true"}, wantErr: "AUTH_BEARER_TOKEN"},
		{name: "bad duration", env: map[string]string{"SEND_INTERVAL": "soon"}, wantErr: "SEND_INTERVAL"},
		{name: "bad header mode", env: map[string]string{"INGEST_AUTH_HEADER": "cookie"}, wantErr: "INGEST_AUTH_HEADER"},
		{name: "zero file size", env: map[string]string{"ROTATION_MAX_FILE_BYTES": "0"}, wantErr: "ROTATION_MAX_FILE_BYTES"},
		{name: "archive without bucket", env: map[string]string{"S3_ARCHIVE_ENABLED": "true"}, wantErr: "S3_BUCKET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %s", err, tt.wantErr)
			}
		})
	}
}
