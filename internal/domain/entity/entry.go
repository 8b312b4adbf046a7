package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EntryType - дискриминатор записи в конверте
type EntryType string

const (
	EntryTypeLog   EntryType = "log"
	EntryTypeEvent EntryType = "event"
)

var (
	ErrUnknownEntryType = errors.New("unknown entry type")
	ErrNilEntry         = errors.New("entry cannot be nil")
)

// Entry - единица телеметрии: Log или Event.
// Реализуется только типами этого пакета.
type Entry interface {
	EntryID() string
	Type() EntryType
	OccurredAt() time.Time
	isEntry()
}

type envelope struct {
	Type  EntryType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Normalize приводит *Log и *Event к значениям
func Normalize(entry Entry) (Entry, error) {
	switch v := entry.(type) {
	case Log, Event:
		return v, nil
	case *Log:
		if v == nil {
			return nil, ErrNilEntry
		}
		return *v, nil
	case *Event:
		if v == nil {
			return nil, ErrNilEntry
		}
		return *v, nil
	case nil:
		return nil, ErrNilEntry
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEntryType, entry)
	}
}

// MarshalEntry кодирует запись в конверт {"type": ..., "value": ...}
func MarshalEntry(entry Entry) ([]byte, error) {
	value, err := Normalize(entry)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s entry: %w", entry.Type(), err)
	}

	return json.Marshal(envelope{Type: entry.Type(), Value: raw})
}

// UnmarshalEntry восстанавливает запись из конверта
func UnmarshalEntry(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode entry envelope: %w", err)
	}
	if len(env.Value) == 0 {
		return nil, fmt.Errorf("entry envelope of type %q has no value", env.Type)
	}

	switch env.Type {
	case EntryTypeLog:
		var l Log
		if err := json.Unmarshal(env.Value, &l); err != nil {
			return nil, fmt.Errorf("failed to decode log entry: %w", err)
		}
		if err := l.Level.Validate(); err != nil {
			return nil, fmt.Errorf("failed to decode log entry: %w", err)
		}
		return l, nil
	case EntryTypeEvent:
		var e Event
		if err := json.Unmarshal(env.Value, &e); err != nil {
			return nil, fmt.Errorf("failed to decode event entry: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntryType, env.Type)
	}
}

// PartitionEntries разделяет записи на логи и события с сохранением порядка
func PartitionEntries(entries []Entry) ([]Log, []Event) {
	logs := make([]Log, 0, len(entries))
	events := make([]Event, 0)

	for _, entry := range entries {
		value, err := Normalize(entry)
		if err != nil {
			continue
		}
		switch v := value.(type) {
		case Log:
			logs = append(logs, v)
		case Event:
			events = append(events, v)
		}
	}

	return logs, events
}
