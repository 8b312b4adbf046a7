package port

import (
	"context"
	"time"
)

// LogLevel represents the severity of an internal diagnostic line.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is one diagnostic line of the pipeline itself, not a telemetry entry.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Fields    map[string]interface{}
}

// LogPublisher forwards the pipeline's own diagnostics to an external sink.
type LogPublisher interface {
	// Publish buffers a single diagnostic line.
	Publish(ctx context.Context, entry LogEntry) error

	// PublishBatch buffers several lines at once.
	PublishBatch(ctx context.Context, entries []LogEntry) error

	// Flush forces immediate delivery of buffered lines.
	// Should be called during graceful shutdown.
	Flush(ctx context.Context) error
}
