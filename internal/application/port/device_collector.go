package port

import (
	"context"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
)

// DeviceCollector определяет интерфейс для сбора метаданных устройства и процесса (Port)
// Реализация будет в Infrastructure слое
type DeviceCollector interface {
	// CollectDevice собирает описание устройства
	CollectDevice(ctx context.Context) (entity.Device, error)

	// CollectExecutable собирает описание текущего процесса
	CollectExecutable(ctx context.Context) (entity.Executable, error)
}
