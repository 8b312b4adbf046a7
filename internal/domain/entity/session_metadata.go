package entity

import (
	"strings"

	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
)

// Platform описывает операционную систему устройства
type Platform struct {
	Name        string `json:"name"`
	VersionCode string `json:"versionCode"`
	VersionName string `json:"versionName"`
}

// Device описывает устройство, на котором выполняется процесс
type Device struct {
	Identifier       string   `json:"identifier"`
	Machine          string   `json:"machine"`
	Model            string   `json:"model"`
	Make             string   `json:"make"`
	Platform         Platform `json:"platform"`
	Name             string   `json:"name"`
	LocaleIdentifier string   `json:"localeIdentifier"`
}

// Package описывает сборку приложения
type Package struct {
	Identifier  string `json:"identifier"`
	VersionName string `json:"versionName"`
	VersionCode string `json:"versionCode"`
	Name        string `json:"name"`
}

// Executable описывает запущенный процесс
type Executable struct {
	Name      string                `json:"name"`
	Package   Package               `json:"package"`
	StartTime valueobject.Timestamp `json:"startTime"`
	Path      string                `json:"path"`
	IsDebug   bool                  `json:"isDebug"`
}

// SessionMetadata - метаданные сессии.
// RemoteIdentifier назначается сервером один раз при регистрации.
type SessionMetadata struct {
	StartedAt        valueobject.Timestamp `json:"startedAt"`
	Device           Device                `json:"device"`
	Executable       Executable            `json:"executable"`
	RemoteIdentifier string                `json:"remoteIdentifier,omitempty"`
}

// NewSessionMetadata создает метаданные новой сессии
func NewSessionMetadata(device Device, executable Executable) SessionMetadata {
	return SessionMetadata{
		StartedAt:  valueobject.Now(),
		Device:     device,
		Executable: executable,
	}
}

// HasRemoteIdentifier сообщает, зарегистрирована ли сессия на сервере
func (m SessionMetadata) HasRemoteIdentifier() bool {
	return strings.TrimSpace(m.RemoteIdentifier) != ""
}

// WithRemoteIdentifier возвращает копию с серверным идентификатором
func (m SessionMetadata) WithRemoteIdentifier(id string) SessionMetadata {
	m.RemoteIdentifier = id
	return m
}
