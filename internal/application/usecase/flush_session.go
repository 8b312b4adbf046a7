package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/dreschagin/session-telemetry/internal/application/session"
	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/dreschagin/session-telemetry/pkg/logger"
)

// FlushSessionUseCase переносит записи из очереди сессии в живой файл на диске
type FlushSessionUseCase struct {
	metrics port.PipelineMetrics
	logger  *logger.Logger
}

// NewFlushSessionUseCase создает новый use case
func NewFlushSessionUseCase(metrics port.PipelineMetrics, logger *logger.Logger) *FlushSessionUseCase {
	if metrics == nil {
		metrics = port.NopPipelineMetrics{}
	}
	return &FlushSessionUseCase{
		metrics: metrics,
		logger:  logger,
	}
}

// Execute выполняет сброс очереди.
// При ошибке записи пачка возвращается в голову очереди.
func (uc *FlushSessionUseCase) Execute(ctx context.Context, sess *session.Session) (repository.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return repository.AppendResult{}, err
	}

	unlock := sess.LockFlush()
	defer unlock()

	// 1. Атомарно забираем все, что накопилось
	entries := sess.Queue().DequeueAll()
	if len(entries) == 0 {
		return repository.AppendResult{}, nil
	}

	// 2. Дописываем в файл сессии
	result, err := sess.Store().AppendEntries(ctx, entries)
	if err != nil {
		depth := sess.Queue().PushFront(entries)
		if errors.Is(err, context.Canceled) {
			uc.logger.Debug("Session queue flush cancelled",
				"session_id", sess.ID().String(),
				"queue_depth", depth,
			)
		} else {
			uc.logger.Error("Failed to flush session queue", err,
				"session_id", sess.ID().String(),
				"entries", len(entries),
				"queue_depth", depth,
			)
		}
		return repository.AppendResult{}, fmt.Errorf("failed to append entries: %w", err)
	}

	// 3. Учитываем результат
	uc.metrics.EntriesFlushed(result.Written)
	if result.Skipped > 0 {
		uc.metrics.EntriesDropped(port.DropReasonEncode, result.Skipped)
	}
	if result.Sealed() {
		uc.metrics.OutfileSealed(string(result.SealReason))
	}

	uc.logger.Debug("Session queue flushed",
		"session_id", sess.ID().String(),
		"written", result.Written,
		"skipped", result.Skipped,
		"sealed", string(result.SealReason),
	)

	return result, nil
}
