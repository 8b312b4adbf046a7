package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dreschagin/session-telemetry/internal/application/dto"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/dreschagin/session-telemetry/internal/interfaces/http/middleware"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
)

// Pipeline - то, что нужно обработчикам от агента телеметрии
type Pipeline interface {
	Submit(entry entity.Entry) bool
	OnSuspend(ctx context.Context) error
	OnResume()
	Status() dto.AgentStatusDTO
}

// TelemetryHandler принимает записи от локальных продюсеров и сигналы жизненного цикла
type TelemetryHandler struct {
	pipeline Pipeline
	logger   *logger.Logger
}

// NewTelemetryHandler создает новый handler
func NewTelemetryHandler(pipeline Pipeline, logger *logger.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// SubmitEntries принимает один конверт или массив конвертов {"type", "value"}.
// Некорректные записи отбрасываются и учитываются в ответе.
func (h *TelemetryHandler) SubmitEntries(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	envelopes, err := splitEnvelopes(raw)
	if err != nil {
		http.Error(w, "Body must be an entry envelope or an array of envelopes", http.StatusBadRequest)
		return
	}

	response := dto.SubmitResponseDTO{}
	for _, envelope := range envelopes {
		entry, err := entity.UnmarshalEntry(envelope)
		if err != nil {
			response.Rejected++
			continue
		}

		if h.pipeline.Submit(complete(entry)) {
			response.Accepted++
		} else {
			response.Rejected++
		}
	}

	if response.Rejected > 0 {
		h.logger.Debug("Entries rejected",
			"accepted", response.Accepted,
			"rejected", response.Rejected,
		)
	}

	middleware.WriteJSON(w, http.StatusAccepted, response)
}

// Suspend сохраняет буфер на диск и приостанавливает отправку
func (h *TelemetryHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.OnSuspend(r.Context()); err != nil {
		h.logger.Error("Failed to suspend pipeline", err)
		http.Error(w, "Failed to persist buffered entries", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resume возобновляет отправку
func (h *TelemetryHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.pipeline.OnResume()
	w.WriteHeader(http.StatusNoContent)
}

// Status возвращает состояние конвейера
func (h *TelemetryHandler) Status(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.pipeline.Status())
}

func splitEnvelopes(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "["):
		var envelopes []json.RawMessage
		if err := json.Unmarshal(raw, &envelopes); err != nil {
			return nil, err
		}
		return envelopes, nil
	case strings.HasPrefix(trimmed, "{"):
		return []json.RawMessage{raw}, nil
	default:
		return nil, errors.New("unexpected body")
	}
}

// complete проставляет идентификатор и время, если продюсер их не передал
func complete(entry entity.Entry) entity.Entry {
	switch e := entry.(type) {
	case entity.Log:
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = valueobject.Now()
		}
		return e
	case entity.Event:
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = valueobject.Now()
		}
		return e
	default:
		return entry
	}
}
