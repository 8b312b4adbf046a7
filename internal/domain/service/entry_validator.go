package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
)

// maxClockSkew - допустимое опережение часов источника записи
const maxClockSkew = 5 * time.Minute

// EntryValidator предоставляет сервисы для валидации записей (Domain Service)
type EntryValidator struct{}

// NewEntryValidator создает новый EntryValidator
func NewEntryValidator() *EntryValidator {
	return &EntryValidator{}
}

// Validate выполняет полную валидацию записи
func (v *EntryValidator) Validate(entry entity.Entry) error {
	entry, err := entity.Normalize(entry)
	if err != nil {
		return err
	}

	if strings.TrimSpace(entry.EntryID()) == "" {
		return errors.New("entry id cannot be empty")
	}

	// Проверка времени
	if entry.OccurredAt().IsZero() {
		return errors.New("timestamp cannot be zero")
	}
	if entry.OccurredAt().After(time.Now().Add(maxClockSkew)) {
		return errors.New("timestamp cannot be in the future")
	}

	switch e := entry.(type) {
	case entity.Log:
		return v.validateLog(e)
	case entity.Event:
		return v.validateEvent(e)
	default:
		return fmt.Errorf("%w: %T", entity.ErrUnknownEntryType, entry)
	}
}

func (v *EntryValidator) validateLog(l entity.Log) error {
	return l.Level.Validate()
}

func (v *EntryValidator) validateEvent(e entity.Event) error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("event name cannot be empty")
	}

	// NaN и Inf не представимы в JSON
	for key, value := range e.Metrics {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("metric %q is not a finite number", key)
		}
	}
	if e.Duration != nil {
		if math.IsNaN(*e.Duration) || math.IsInf(*e.Duration, 0) || *e.Duration < 0 {
			return errors.New("duration must be a finite non-negative number")
		}
	}

	return nil
}
