package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DrainReport - итог прохода по сохраненным сессиям
type DrainReport struct {
	Discovered int
	Drained    int
	Failed     int
	Skipped    int
	Removed    []uuid.UUID
}

// Pending возвращает число сессий, оставшихся на диске
func (r *DrainReport) Pending() int {
	return r.Discovered - r.Drained
}

// DrainSavedSessionsUseCase выгружает сессии прошлых запусков и удаляет полностью отправленные
type DrainSavedSessionsUseCase struct {
	sessions    repository.SessionRepository
	send        *SendSessionUseCase
	concurrency int
	logger      *logger.Logger

	mu          sync.Mutex
	quarantined map[uuid.UUID]struct{}
}

// NewDrainSavedSessionsUseCase создает новый use case
func NewDrainSavedSessionsUseCase(
	sessions repository.SessionRepository,
	send *SendSessionUseCase,
	concurrency int,
	logger *logger.Logger,
) *DrainSavedSessionsUseCase {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &DrainSavedSessionsUseCase{
		sessions:    sessions,
		send:        send,
		concurrency: concurrency,
		logger:      logger,
		quarantined: make(map[uuid.UUID]struct{}),
	}
}

// Execute обрабатывает все сессии, кроме текущей.
// Ошибка одной сессии не мешает остальным.
func (uc *DrainSavedSessionsUseCase) Execute(ctx context.Context, current uuid.UUID) (*DrainReport, error) {
	ids, err := uc.sessions.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved sessions: %w", err)
	}

	report := &DrainReport{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(uc.concurrency)

	for _, id := range ids {
		if id == current {
			continue
		}

		report.Discovered++
		if uc.isQuarantined(id) {
			report.Skipped++
			continue
		}

		g.Go(func() error {
			drained, failed := uc.drainOne(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if drained {
				report.Drained++
				report.Removed = append(report.Removed, id)
			}
			if failed {
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Discovered > 0 {
		uc.logger.Info("Saved sessions processed",
			"discovered", report.Discovered,
			"drained", report.Drained,
			"failed", report.Failed,
			"skipped", report.Skipped,
		)
	}

	return report, nil
}

func (uc *DrainSavedSessionsUseCase) drainOne(ctx context.Context, id uuid.UUID) (drained, failed bool) {
	store := uc.sessions.Open(id)

	report, err := uc.send.Execute(ctx, store)
	switch {
	case errors.Is(err, ErrMetadataMissing):
		return uc.handleMissingMetadata(ctx, store), false
	case err != nil:
		uc.logger.Warn("Saved session not drained, will retry",
			"session_id", id.String(),
			"error", err.Error(),
		)
		return false, true
	case !report.Drained():
		return false, false
	}

	if err := store.DeleteSession(ctx); err != nil {
		uc.logger.Error("Failed to delete drained session", err, "session_id", id.String())
		return false, true
	}

	uc.logger.Info("Saved session drained and removed",
		"session_id", id.String(),
		"outfiles_sent", report.OutfilesSent,
		"entries_sent", report.EntriesSent,
	)
	return true, false
}

// handleMissingMetadata удаляет пустую сессию без метаданных,
// а непустую откладывает до следующего запуска процесса.
func (uc *DrainSavedSessionsUseCase) handleMissingMetadata(ctx context.Context, store repository.SessionStore) bool {
	id := store.SessionID()

	if _, err := store.SealEntries(ctx); err != nil {
		uc.logger.Warn("Failed to seal entries of session without metadata", "session_id", id.String(), "error", err.Error())
	}

	outfiles, err := store.ListOutfiles(ctx)
	if err == nil && len(outfiles) == 0 {
		if err := store.DeleteSession(ctx); err == nil {
			uc.logger.Info("Removed empty session without metadata", "session_id", id.String())
			return true
		}
	}

	uc.mu.Lock()
	uc.quarantined[id] = struct{}{}
	uc.mu.Unlock()

	uc.logger.Warn("Session has entries but no metadata, skipping until restart",
		"session_id", id.String(),
		"outfiles", len(outfiles),
	)
	return false
}

func (uc *DrainSavedSessionsUseCase) isQuarantined(id uuid.UUID) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	_, ok := uc.quarantined[id]
	return ok
}
