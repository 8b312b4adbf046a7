package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dreschagin/session-telemetry/internal/application/dto"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/dreschagin/session-telemetry/internal/domain/service"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/persistence/filesystem"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
)

// mockIngestClient - мок транспорта до сервиса приема
type mockIngestClient struct {
	mu sync.Mutex

	remoteID    string
	registerErr error
	// uploadErr вызывается перед каждой отправкой; nil - успех
	uploadErr func(call int) error

	registerCalls int
	uploadCalls   int
	// attempts хранит все вызовы отправки, включая неудачные
	attempts [][]entity.Entry
	uploaded [][]entity.Entry

	registerEntered chan struct{}
	registerRelease chan struct{}
}

func newMockIngestClient() *mockIngestClient {
	return &mockIngestClient{remoteID: "remote-1"}
}

func (m *mockIngestClient) RegisterSession(ctx context.Context, metadata entity.SessionMetadata) (string, error) {
	m.mu.Lock()
	m.registerCalls++
	entered, release := m.registerEntered, m.registerRelease
	m.registerEntered = nil
	m.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}

	if m.registerErr != nil {
		return "", m.registerErr
	}
	return m.remoteID, nil
}

func (m *mockIngestClient) UploadEntries(ctx context.Context, remoteSessionID string, entries []entity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploadCalls++
	m.attempts = append(m.attempts, append([]entity.Entry(nil), entries...))
	if remoteSessionID != m.remoteID {
		return errors.New("unknown remote session")
	}
	if m.uploadErr != nil {
		if err := m.uploadErr(m.uploadCalls); err != nil {
			return err
		}
	}

	m.uploaded = append(m.uploaded, append([]entity.Entry(nil), entries...))
	return nil
}

func (m *mockIngestClient) uploadedMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var messages []string
	for _, batch := range m.uploaded {
		for _, entry := range batch {
			if log, ok := entry.(entity.Log); ok {
				messages = append(messages, log.Message)
			}
		}
	}
	return messages
}

// mockEventPublisher - мок брокера уведомлений
type mockEventPublisher struct {
	mu       sync.Mutex
	subjects []string
	events   []dto.IngestionEventDTO
}

func (m *mockEventPublisher) PublishEvent(ctx context.Context, subject string, event interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subjects = append(m.subjects, subject)
	if ev, ok := event.(dto.IngestionEventDTO); ok {
		m.events = append(m.events, ev)
	}
	return nil
}

func (m *mockEventPublisher) Close() error {
	return nil
}

// mockBatchArchive - мок архива подтвержденных пачек
type mockBatchArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *mockBatchArchive) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = body
	return nil
}

func newTestRepository(t *testing.T, maxFileSize int64) *filesystem.Repository {
	t.Helper()

	opts := filesystem.Options{
		Policy: service.NewRotationPolicy(maxFileSize, service.DefaultUrgencyThreshold),
	}
	repo, err := filesystem.NewRepository(t.TempDir(), opts, logger.New("error"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	return repo
}

func newStoredSession(t *testing.T, repo *filesystem.Repository, withMetadata bool) repository.SessionStore {
	t.Helper()

	store := repo.Open(uuid.New())
	if withMetadata {
		metadata := entity.NewSessionMetadata(entity.Device{Model: "test"}, entity.Executable{Name: "app"})
		if err := store.SaveMetadata(context.Background(), metadata); err != nil {
			t.Fatalf("SaveMetadata() error = %v", err)
		}
	}
	return store
}

func debugLog(t *testing.T, message string) entity.Log {
	t.Helper()

	log, err := entity.NewLog(valueobject.LevelDebug, message, entity.SourceLocation{File: "main.go", Line: 1})
	if err != nil {
		t.Fatalf("NewLog() error = %v", err)
	}
	return log
}

// appendBatches пишет каждую пачку отдельным вызовом, чтобы получить несколько файлов
func appendBatches(t *testing.T, store repository.SessionStore, batches ...[]string) {
	t.Helper()

	for _, batch := range batches {
		entries := make([]entity.Entry, 0, len(batch))
		for _, message := range batch {
			entries = append(entries, debugLog(t, message))
		}
		if _, err := store.AppendEntries(context.Background(), entries); err != nil {
			t.Fatalf("AppendEntries() error = %v", err)
		}
	}
}

func newTestSendUseCase(client *mockIngestClient) *SendSessionUseCase {
	return NewSendSessionUseCase(client, nil, nil, nil, SendSessionConfig{}, logger.New("error"))
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newEventEntry(name string) ([]entity.Entry, error) {
	event, err := entity.NewEvent(name)
	if err != nil {
		return nil, err
	}
	return []entity.Entry{event}, nil
}

func entryIDs(entries []entity.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.EntryID())
	}
	return ids
}
