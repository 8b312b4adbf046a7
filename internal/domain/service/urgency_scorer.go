package service

import (
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
)

// UrgencyWeights задает вклад записей в срочность отправки
type UrgencyWeights struct {
	Event  float64
	Levels map[valueobject.LogLevel]float64
}

// DefaultUrgencyWeights возвращает эталонные веса
func DefaultUrgencyWeights() UrgencyWeights {
	return UrgencyWeights{
		Event: 0.25,
		Levels: map[valueobject.LogLevel]float64{
			valueobject.LevelTrace:   0,
			valueobject.LevelDebug:   0.1,
			valueobject.LevelInfo:    0.25,
			valueobject.LevelWarning: 0.5,
			valueobject.LevelError:   1.0,
			valueobject.LevelFatal:   1.0,
		},
	}
}

// UrgencyScorer считает срочность отправки записей (Domain Service)
type UrgencyScorer struct {
	weights UrgencyWeights
}

// NewUrgencyScorer создает новый UrgencyScorer
func NewUrgencyScorer(weights UrgencyWeights) *UrgencyScorer {
	if weights.Levels == nil {
		weights = DefaultUrgencyWeights()
	}
	return &UrgencyScorer{weights: weights}
}

// Score возвращает вклад одной записи
func (s *UrgencyScorer) Score(entry entity.Entry) float64 {
	value, err := entity.Normalize(entry)
	if err != nil {
		return 0
	}

	switch v := value.(type) {
	case entity.Log:
		return s.weights.Levels[v.Level]
	case entity.Event:
		return s.weights.Event
	default:
		return 0
	}
}

// Sum возвращает суммарную срочность записей
func (s *UrgencyScorer) Sum(entries []entity.Entry) float64 {
	var total float64
	for _, entry := range entries {
		total += s.Score(entry)
	}
	return total
}
