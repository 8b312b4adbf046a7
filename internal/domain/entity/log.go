package entity

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/google/uuid"
)

// SourceLocation описывает место в коде, откуда пришла лог-запись
type SourceLocation struct {
	File     string
	Function string
	Line     int
	Column   int
}

// CallerLocation возвращает место вызова на skip кадров выше вызывающего
func CallerLocation(skip int) SourceLocation {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return SourceLocation{}
	}

	loc := SourceLocation{File: filepath.Base(file), Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		loc.Function = fn.Name()
	}
	return loc
}

// Log - структурированная лог-запись (неизменяемый Value)
type Log struct {
	ID        string                `json:"id"`
	Level     valueobject.LogLevel  `json:"level"`
	Message   string                `json:"message"`
	File      string                `json:"file"`
	Function  string                `json:"function"`
	Line      int                   `json:"line"`
	Column    int                   `json:"column"`
	Timestamp valueobject.Timestamp `json:"timestamp"`
}

// NewLog создает лог-запись с новым идентификатором и текущим временем (Factory Method)
func NewLog(level valueobject.LogLevel, message string, loc SourceLocation) (Log, error) {
	if err := level.Validate(); err != nil {
		return Log{}, err
	}

	return Log{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		File:      loc.File,
		Function:  loc.Function,
		Line:      loc.Line,
		Column:    loc.Column,
		Timestamp: valueobject.Now(),
	}, nil
}

// EntryID возвращает уникальный идентификатор записи
func (l Log) EntryID() string {
	return l.ID
}

// Type возвращает тип записи
func (l Log) Type() EntryType {
	return EntryTypeLog
}

// OccurredAt возвращает время записи
func (l Log) OccurredAt() time.Time {
	return l.Timestamp.Time()
}

func (Log) isEntry() {}
