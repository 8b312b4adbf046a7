package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/pkg/logger"
)

// mockDeviceCollector - мок сборщика сведений об устройстве
type mockDeviceCollector struct {
	device     entity.Device
	executable entity.Executable
	err        error
}

func (m *mockDeviceCollector) CollectDevice(ctx context.Context) (entity.Device, error) {
	return m.device, m.err
}

func (m *mockDeviceCollector) CollectExecutable(ctx context.Context) (entity.Executable, error) {
	return m.executable, m.err
}

func TestStartSessionUseCase_Execute(t *testing.T) {
	tests := []struct {
		name           string
		collector      *mockDeviceCollector
		wantModel      string
		wantExecutable string
	}{
		{
			name: "collected info",
			collector: &mockDeviceCollector{
				device:     entity.Device{Model: "x86_64", Platform: entity.Platform{Name: "linux"}},
				executable: entity.Executable{Name: "agent"},
			},
			wantModel:      "x86_64",
			wantExecutable: "agent",
		},
		{
			name:      "collector failure falls back",
			collector: &mockDeviceCollector{err: errors.New("no host info")},
			wantModel: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newTestRepository(t, 1<<20)
			uc := NewStartSessionUseCase(repo, tt.collector, logger.New("error"))

			sess, err := uc.Execute(ctx)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}

			metadata, err := sess.Store().LoadMetadata(ctx)
			if err != nil || metadata == nil {
				t.Fatalf("metadata must be saved before entries, got %v, %v", metadata, err)
			}
			if metadata.Device.Model != tt.wantModel {
				t.Errorf("device model = %q, want %q", metadata.Device.Model, tt.wantModel)
			}
			if tt.wantExecutable != "" && metadata.Executable.Name != tt.wantExecutable {
				t.Errorf("executable = %q, want %q", metadata.Executable.Name, tt.wantExecutable)
			}
			if metadata.Executable.Name == "" {
				t.Error("executable name must never be empty")
			}
			if metadata.HasRemoteIdentifier() {
				t.Error("new session must not have a remote identifier")
			}

			ids, _ := repo.ListSessions(ctx)
			if len(ids) != 1 || ids[0] != sess.ID() {
				t.Errorf("expected the new session on disk, got %v", ids)
			}
		})
	}
}
