package dto

import "time"

// AgentStatusDTO представляет состояние конвейера для health-эндпоинтов
type AgentStatusDTO struct {
	Status          string         `json:"status"` // "ok", "suspended", "degraded"
	SessionID       string         `json:"session_id"`
	Uptime          string         `json:"uptime"`
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`
	LastError       string         `json:"last_error,omitempty"`
	QueueDepth      int            `json:"queue_depth"`
	PendingSessions int            `json:"pending_sessions"`
	LastReport      *SendReportDTO `json:"last_report,omitempty"`
}

// SendReportDTO содержит итог последнего цикла отправки текущей сессии
type SendReportDTO struct {
	State           string `json:"state"`
	Registered      bool   `json:"registered"`
	OutfilesSent    int    `json:"outfiles_sent"`
	EntriesSent     int    `json:"entries_sent"`
	OutfilesPending int    `json:"outfiles_pending"`
}

// SubmitResponseDTO - ответ на прием записей от локальных продюсеров
type SubmitResponseDTO struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}
