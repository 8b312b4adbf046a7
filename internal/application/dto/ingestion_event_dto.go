package dto

import "time"

// IngestionEventDTO - уведомление о результате отправки на сервер.
// Публикуется в брокер сообщений
type IngestionEventDTO struct {
	SessionID       string    `json:"session_id"`
	RemoteSessionID string    `json:"remote_session_id,omitempty"`
	Outfile         string    `json:"outfile,omitempty"`
	Entries         int       `json:"entries,omitempty"`
	Error           string    `json:"error,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}
