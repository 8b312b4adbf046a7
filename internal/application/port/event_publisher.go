package port

import (
	"context"
)

// EventPublisher defines the interface for publishing pipeline notifications to a message broker
type EventPublisher interface {
	// PublishEvent publishes an event to the specified subject
	PublishEvent(ctx context.Context, subject string, event interface{}) error

	// Close closes the connection to the message broker
	Close() error
}

// Ingestion notification subjects, relative to the configured prefix.
const (
	SubjectMetadataIngested = "session.metadata.ingested"
	SubjectMetadataFailed   = "session.metadata.failed"
	SubjectEntriesIngested  = "session.entries.ingested"
	SubjectEntriesFailed    = "session.entries.failed"
)
