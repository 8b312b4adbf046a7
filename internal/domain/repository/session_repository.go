package repository

import (
	"context"
	"errors"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/google/uuid"
)

// ErrOutfileNotFound возвращается, если запечатанный файл уже удален
var ErrOutfileNotFound = errors.New("outfile not found")

// SealReason - причина запечатывания файла записей
type SealReason string

const (
	SealReasonNone    SealReason = ""
	SealReasonSize    SealReason = "size"
	SealReasonUrgency SealReason = "urgency"
	SealReasonSend    SealReason = "send"
)

// AppendResult - итог дозаписи пачки записей в файл сессии
type AppendResult struct {
	Written    int
	Skipped    int
	SealReason SealReason
}

// Sealed сообщает, был ли файл запечатан после дозаписи
func (r AppendResult) Sealed() bool {
	return r.SealReason != SealReasonNone
}

// SessionStore определяет хранилище одной сессии на диске (Port)
// Реализация будет в Infrastructure слое
type SessionStore interface {
	// SessionID возвращает локальный идентификатор сессии
	SessionID() uuid.UUID

	// SaveMetadata перезаписывает метаданные сессии
	SaveMetadata(ctx context.Context, metadata entity.SessionMetadata) error

	// LoadMetadata читает метаданные; nil, если их еще нет
	LoadMetadata(ctx context.Context) (*entity.SessionMetadata, error)

	// AppendEntries дописывает записи в живой файл и при необходимости запечатывает его
	AppendEntries(ctx context.Context, entries []entity.Entry) (AppendResult, error)

	// SealEntries немедленно запечатывает живой файл; false, если запечатывать нечего
	SealEntries(ctx context.Context) (bool, error)

	// ListOutfiles возвращает запечатанные файлы от старых к новым
	ListOutfiles(ctx context.Context) ([]string, error)

	// LoadEntries читает записи запечатанного файла, пропуская поврежденные строки
	LoadEntries(ctx context.Context, outfile string) ([]entity.Entry, error)

	// ReadOutfile возвращает содержимое запечатанного файла как есть
	ReadOutfile(ctx context.Context, outfile string) ([]byte, error)

	// DeleteOutfile удаляет запечатанный файл после подтверждения сервером
	DeleteOutfile(ctx context.Context, outfile string) error

	// DeleteSession удаляет директорию сессии целиком
	DeleteSession(ctx context.Context) error
}

// SessionRepository определяет набор сессий на диске (Port)
type SessionRepository interface {
	// ListSessions возвращает идентификаторы всех сохраненных сессий
	ListSessions(ctx context.Context) ([]uuid.UUID, error)

	// Open возвращает хранилище сессии; директории создаются лениво
	Open(id uuid.UUID) SessionStore
}
