package port

import (
	"context"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
)

// IngestClient определяет транспорт до сервиса приема телеметрии (Port)
// Реализация будет в Infrastructure слое
type IngestClient interface {
	// RegisterSession регистрирует сессию и возвращает серверный идентификатор
	RegisterSession(ctx context.Context, metadata entity.SessionMetadata) (string, error)

	// UploadEntries отправляет пачку записей; успех означает подтверждение сервера
	UploadEntries(ctx context.Context, remoteSessionID string, entries []entity.Entry) error
}
