package entity

import (
	"errors"
	"strings"
	"time"

	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/google/uuid"
)

// Event - именованное событие с атрибутами и числовыми метриками (неизменяемый Value).
// Duration указывается в секундах.
type Event struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Attributes map[string]string     `json:"attributes,omitempty"`
	Metrics    map[string]float64    `json:"metrics,omitempty"`
	Timestamp  valueobject.Timestamp `json:"timestamp"`
	Duration   *float64              `json:"duration,omitempty"`
}

// NewEvent создает событие с новым идентификатором (Factory Method)
func NewEvent(name string) (Event, error) {
	if strings.TrimSpace(name) == "" {
		return Event{}, errors.New("event name cannot be empty")
	}

	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: valueobject.Now(),
	}, nil
}

// NewTimedEvent выполняет fn и создает событие с измеренной длительностью.
// Ошибка fn возвращается как есть, событие создается в любом случае.
func NewTimedEvent(name string, fn func() error) (Event, error) {
	event, err := NewEvent(name)
	if err != nil {
		return Event{}, err
	}

	started := time.Now()
	fnErr := fn()
	return event.WithDuration(time.Since(started)), fnErr
}

// WithAttribute возвращает копию события с добавленным атрибутом
func (e Event) WithAttribute(key, value string) Event {
	attributes := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attributes[k] = v
	}
	attributes[key] = value
	e.Attributes = attributes
	return e
}

// WithMetric возвращает копию события с добавленной метрикой
func (e Event) WithMetric(key string, value float64) Event {
	metrics := make(map[string]float64, len(e.Metrics)+1)
	for k, v := range e.Metrics {
		metrics[k] = v
	}
	metrics[key] = value
	e.Metrics = metrics
	return e
}

// WithDuration возвращает копию события с длительностью
func (e Event) WithDuration(d time.Duration) Event {
	seconds := d.Seconds()
	e.Duration = &seconds
	return e
}

// EntryID возвращает уникальный идентификатор записи
func (e Event) EntryID() string {
	return e.ID
}

// Type возвращает тип записи
func (e Event) Type() EntryType {
	return EntryTypeEvent
}

// OccurredAt возвращает время события
func (e Event) OccurredAt() time.Time {
	return e.Timestamp.Time()
}

func (Event) isEntry() {}
