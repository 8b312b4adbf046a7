package valueobject

import (
	"fmt"
	"strings"
)

// LogLevel представляет уровень важности лог-записи (Value Object)
type LogLevel string

const (
	LevelTrace   LogLevel = "trace"
	LevelDebug   LogLevel = "debug"
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
	LevelFatal   LogLevel = "fatal"
)

// ParseLogLevel разбирает строковое представление уровня
func ParseLogLevel(raw string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err := level.Validate(); err != nil {
		return "", err
	}
	return level, nil
}

// Validate проверяет валидность уровня
func (l LogLevel) Validate() error {
	switch l {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarning, LevelError, LevelFatal:
		return nil
	default:
		return fmt.Errorf("invalid log level %q", string(l))
	}
}

// String возвращает строковое представление уровня
func (l LogLevel) String() string {
	return string(l)
}

// AllLogLevels возвращает список всех уровней в порядке возрастания важности
func AllLogLevels() []LogLevel {
	return []LogLevel{LevelTrace, LevelDebug, LevelInfo, LevelWarning, LevelError, LevelFatal}
}
