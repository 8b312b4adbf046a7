package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/dto"
	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// ErrMetadataMissing - у сессии нет метаданных, без них отправка невозможна
var ErrMetadataMissing = errors.New("session metadata missing")

// SendState - состояние цикла отправки
type SendState string

const (
	StateNeedsMetadataUpload SendState = "needs_metadata_upload"
	StateNeedsEntryUpload    SendState = "needs_entry_upload"
	StateDraining            SendState = "draining"
	StateIdle                SendState = "idle"
)

// SendReport - итог одного цикла отправки
type SendReport struct {
	SessionID       uuid.UUID
	RemoteSessionID string
	State           SendState
	Registered      bool
	OutfilesSent    int
	EntriesSent     int
	OutfilesPending int
}

// Drained сообщает, что на диске не осталось неотправленных файлов
func (r *SendReport) Drained() bool {
	return r != nil && r.State == StateIdle
}

// SendSessionConfig - параметры отправки
type SendSessionConfig struct {
	// MaxConcurrentSessions ограничивает число одновременных циклов по разным сессиям
	MaxConcurrentSessions int64
	// SubjectPrefix - префикс тем уведомлений о приеме
	SubjectPrefix string
	// ArchivePrefix - префикс ключей архива подтвержденных пачек
	ArchivePrefix string
}

// SendSessionUseCase выгружает сессию на сервер: регистрирует ее и отправляет
// запечатанные файлы от старых к новым, удаляя каждый после подтверждения.
type SendSessionUseCase struct {
	client    port.IngestClient
	publisher port.EventPublisher
	archive   port.BatchArchive
	metrics   port.PipelineMetrics
	cfg       SendSessionConfig
	logger    *logger.Logger

	inflight singleflight.Group
	slots    *semaphore.Weighted
}

// NewSendSessionUseCase создает новый use case.
// publisher, archive и metrics могут быть nil
func NewSendSessionUseCase(
	client port.IngestClient,
	publisher port.EventPublisher,
	archive port.BatchArchive,
	metrics port.PipelineMetrics,
	cfg SendSessionConfig,
	logger *logger.Logger,
) *SendSessionUseCase {
	if metrics == nil {
		metrics = port.NopPipelineMetrics{}
	}
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = 2
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "telemetry"
	}
	return &SendSessionUseCase{
		client:    client,
		publisher: publisher,
		archive:   archive,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		slots:     semaphore.NewWeighted(cfg.MaxConcurrentSessions),
	}
}

// Execute выполняет цикл отправки сессии.
// Одновременные вызовы по одной сессии присоединяются к уже идущему циклу.
func (uc *SendSessionUseCase) Execute(ctx context.Context, store repository.SessionStore) (*SendReport, error) {
	key := store.SessionID().String()

	value, err, shared := uc.inflight.Do(key, func() (interface{}, error) {
		if err := uc.slots.Acquire(ctx, 1); err != nil {
			return &SendReport{SessionID: store.SessionID(), State: StateNeedsMetadataUpload}, err
		}
		defer uc.slots.Release(1)

		started := time.Now()
		report, err := uc.run(ctx, store)
		uc.metrics.SendCycleObserved(time.Since(started), err)
		return report, err
	})
	if shared {
		uc.logger.Debug("Joined in-flight send cycle", "session_id", key)
	}

	// Цикл идет с контекстом первого вызова; если отменили его, а не нас, повторяем
	if shared && errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return uc.Execute(ctx, store)
	}

	report, _ := value.(*SendReport)
	return report, err
}

func (uc *SendSessionUseCase) run(ctx context.Context, store repository.SessionStore) (*SendReport, error) {
	report := &SendReport{SessionID: store.SessionID(), State: StateNeedsMetadataUpload}
	sealed := false
	outfile := ""

	for {
		switch report.State {
		case StateNeedsMetadataUpload:
			// 1. Метаданные обязательны
			metadata, err := store.LoadMetadata(ctx)
			if err != nil {
				return report, fmt.Errorf("failed to load metadata: %w", err)
			}
			if metadata == nil {
				return report, ErrMetadataMissing
			}

			// 2. Регистрируем сессию и повторяем шаг 1
			if !metadata.HasRemoteIdentifier() {
				if report.Registered {
					return report, errors.New("remote identifier missing after registration")
				}
				if err := uc.register(ctx, store, *metadata); err != nil {
					return report, err
				}
				report.Registered = true
				continue
			}

			report.RemoteSessionID = metadata.RemoteIdentifier
			report.State = StateDraining

		case StateDraining:
			// 3. Запечатываем живой файл, ошибка не критична
			if !sealed {
				sealed = true
				ok, err := store.SealEntries(ctx)
				if err != nil {
					uc.logger.Warn("Failed to seal live entries file",
						"session_id", report.SessionID.String(),
						"error", err.Error(),
					)
				} else if ok {
					uc.metrics.OutfileSealed(string(repository.SealReasonSend))
				}
			}

			if err := ctx.Err(); err != nil {
				return report, err
			}

			// 4. Берем самый старый файл
			outfiles, err := store.ListOutfiles(ctx)
			if err != nil {
				return report, fmt.Errorf("failed to list outfiles: %w", err)
			}
			report.OutfilesPending = len(outfiles)
			if len(outfiles) == 0 {
				report.State = StateIdle
				continue
			}

			outfile = outfiles[0]
			report.State = StateNeedsEntryUpload

		case StateNeedsEntryUpload:
			// 5. Отправляем и удаляем после подтверждения
			sent, err := uc.uploadOutfile(ctx, store, report.RemoteSessionID, outfile)
			if err != nil {
				return report, err
			}
			report.OutfilesSent++
			report.EntriesSent += sent
			report.State = StateDraining

		case StateIdle:
			uc.logger.Debug("Session drained",
				"session_id", report.SessionID.String(),
				"outfiles_sent", report.OutfilesSent,
				"entries_sent", report.EntriesSent,
			)
			return report, nil

		default:
			return report, fmt.Errorf("unknown send state %q", report.State)
		}
	}
}

func (uc *SendSessionUseCase) register(ctx context.Context, store repository.SessionStore, metadata entity.SessionMetadata) error {
	sessionID := store.SessionID().String()

	// Начатый сетевой вызов не отменяется, его ограничивает таймаут клиента
	remoteID, err := uc.client.RegisterSession(context.WithoutCancel(ctx), metadata)
	if err != nil {
		uc.metrics.UploadFailed(port.OperationRegister)
		uc.notify(ctx, port.SubjectMetadataFailed, dto.IngestionEventDTO{
			SessionID: sessionID,
			Error:     err.Error(),
		})
		return fmt.Errorf("failed to register session: %w", err)
	}

	if err := store.SaveMetadata(ctx, metadata.WithRemoteIdentifier(remoteID)); err != nil {
		// Сервер уже создал сессию, следующий цикл зарегистрирует ее повторно
		uc.logger.Error("Registered session but failed to persist remote identifier", err,
			"session_id", sessionID,
			"remote_session_id", remoteID,
		)
		return fmt.Errorf("failed to persist remote identifier: %w", err)
	}

	uc.metrics.SessionRegistered()
	uc.notify(ctx, port.SubjectMetadataIngested, dto.IngestionEventDTO{
		SessionID:       sessionID,
		RemoteSessionID: remoteID,
	})
	uc.logger.Info("Session registered", "session_id", sessionID, "remote_session_id", remoteID)

	return nil
}

func (uc *SendSessionUseCase) uploadOutfile(ctx context.Context, store repository.SessionStore, remoteID, outfile string) (int, error) {
	sessionID := store.SessionID().String()

	entries, err := store.LoadEntries(ctx, outfile)
	if errors.Is(err, repository.ErrOutfileNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load outfile %s: %w", outfile, err)
	}

	if len(entries) > 0 {
		if err := uc.client.UploadEntries(context.WithoutCancel(ctx), remoteID, entries); err != nil {
			uc.metrics.UploadFailed(port.OperationUpload)
			uc.notify(ctx, port.SubjectEntriesFailed, dto.IngestionEventDTO{
				SessionID:       sessionID,
				RemoteSessionID: remoteID,
				Outfile:         outfile,
				Entries:         len(entries),
				Error:           err.Error(),
			})
			return 0, fmt.Errorf("failed to upload outfile %s: %w", outfile, err)
		}

		uc.metrics.BatchUploaded(len(entries))
		uc.archiveOutfile(ctx, store, remoteID, outfile)
	} else {
		uc.logger.Warn("Outfile has no readable entries, discarding",
			"session_id", sessionID,
			"outfile", outfile,
		)
	}

	// Удаление только после подтверждения: при сбое файл будет отправлен повторно
	if err := store.DeleteOutfile(ctx, outfile); err != nil {
		return 0, fmt.Errorf("failed to delete acknowledged outfile %s: %w", outfile, err)
	}

	if len(entries) > 0 {
		uc.notify(ctx, port.SubjectEntriesIngested, dto.IngestionEventDTO{
			SessionID:       sessionID,
			RemoteSessionID: remoteID,
			Outfile:         outfile,
			Entries:         len(entries),
		})
	}

	return len(entries), nil
}

func (uc *SendSessionUseCase) archiveOutfile(ctx context.Context, store repository.SessionStore, remoteID, outfile string) {
	if uc.archive == nil {
		return
	}

	body, err := store.ReadOutfile(ctx, outfile)
	if err != nil {
		uc.logger.Warn("Failed to read outfile for archive", "outfile", outfile, "error", err.Error())
		return
	}

	key := path.Join(uc.cfg.ArchivePrefix, remoteID, outfile)
	if err := uc.archive.PutObject(ctx, key, "application/x-ndjson", body); err != nil {
		uc.logger.Warn("Failed to archive acknowledged batch", "key", key, "error", err.Error())
		return
	}

	uc.logger.Debug("Acknowledged batch archived", "key", key, "size", len(body))
}

func (uc *SendSessionUseCase) notify(ctx context.Context, subject string, event dto.IngestionEventDTO) {
	if uc.publisher == nil {
		return
	}

	event.OccurredAt = time.Now().UTC()
	fullSubject := uc.cfg.SubjectPrefix + "." + subject
	if err := uc.publisher.PublishEvent(ctx, fullSubject, event); err != nil {
		uc.logger.Warn("Failed to publish ingestion notification",
			"subject", fullSubject,
			"error", err.Error(),
		)
	}
}
