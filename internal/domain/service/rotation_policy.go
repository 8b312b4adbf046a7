package service

import "github.com/dreschagin/session-telemetry/internal/domain/repository"

const (
	// DefaultMaxFileSize - эталонный порог размера живого файла
	DefaultMaxFileSize int64 = 1 << 20
	// DefaultUrgencyThreshold - эталонный порог накопленной срочности
	DefaultUrgencyThreshold = 1.0
)

// RotationPolicy решает, пора ли запечатать живой файл записей (Domain Service)
type RotationPolicy struct {
	MaxFileSize      int64
	UrgencyThreshold float64
}

// NewRotationPolicy создает политику; нулевые значения заменяются эталонными
func NewRotationPolicy(maxFileSize int64, urgencyThreshold float64) RotationPolicy {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if urgencyThreshold <= 0 {
		urgencyThreshold = DefaultUrgencyThreshold
	}
	return RotationPolicy{MaxFileSize: maxFileSize, UrgencyThreshold: urgencyThreshold}
}

// Evaluate возвращает причину запечатывания или SealReasonNone.
// Порог достигается включительно: одна ошибка (1.0) уже запечатывает файл.
func (p RotationPolicy) Evaluate(fileSize int64, urgency float64) repository.SealReason {
	if fileSize >= p.MaxFileSize {
		return repository.SealReasonSize
	}
	if urgency >= p.UrgencyThreshold {
		return repository.SealReasonUrgency
	}
	return repository.SealReasonNone
}
