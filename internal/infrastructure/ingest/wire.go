package ingest

import (
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
)

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
	TokenType string `json:"tokenType"`
}

type registerRequest struct {
	Executable entity.Executable     `json:"executable"`
	Device     entity.Device         `json:"device"`
	StartedAt  valueobject.Timestamp `json:"startedAt"`
}

type registerResponse struct {
	SessionID string `json:"sessionId"`
}

type entriesRequest struct {
	Logs   []entity.Log   `json:"logs"`
	Events []entity.Event `json:"events"`
}
