package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/dreschagin/session-telemetry/internal/application/session"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
)

// StartSessionUseCase создает текущую сессию процесса и сохраняет ее метаданные
type StartSessionUseCase struct {
	sessions  repository.SessionRepository
	collector port.DeviceCollector
	logger    *logger.Logger
}

// NewStartSessionUseCase создает новый use case; collector может быть nil
func NewStartSessionUseCase(
	sessions repository.SessionRepository,
	collector port.DeviceCollector,
	logger *logger.Logger,
) *StartSessionUseCase {
	return &StartSessionUseCase{
		sessions:  sessions,
		collector: collector,
		logger:    logger,
	}
}

// Execute выполняет запуск сессии.
// Ошибка сохранения метаданных возвращается сразу: без них сессию нельзя отправить.
func (uc *StartSessionUseCase) Execute(ctx context.Context) (*session.Session, error) {
	// 1. Собираем сведения об устройстве и процессе
	device, executable := uc.describe(ctx)

	// 2. Сохраняем метаданные до приема первых записей
	id := uuid.New()
	store := uc.sessions.Open(id)
	metadata := entity.NewSessionMetadata(device, executable)
	if err := store.SaveMetadata(ctx, metadata); err != nil {
		return nil, fmt.Errorf("failed to save session metadata: %w", err)
	}

	uc.logger.Info("Session started",
		"session_id", id.String(),
		"executable", executable.Name,
		"platform", device.Platform.Name,
	)

	return session.New(store), nil
}

func (uc *StartSessionUseCase) describe(ctx context.Context) (entity.Device, entity.Executable) {
	device := entity.Device{}
	executable := fallbackExecutable()

	if uc.collector == nil {
		return device, executable
	}

	if collected, err := uc.collector.CollectDevice(ctx); err != nil {
		uc.logger.Warn("Failed to collect device info", "error", err.Error())
	} else {
		device = collected
	}

	if collected, err := uc.collector.CollectExecutable(ctx); err != nil {
		uc.logger.Warn("Failed to collect executable info", "error", err.Error())
	} else {
		executable = collected
	}

	return device, executable
}

func fallbackExecutable() entity.Executable {
	path, _ := os.Executable()
	return entity.Executable{
		Name:      filepath.Base(path),
		Path:      path,
		StartTime: valueobject.Now(),
	}
}
