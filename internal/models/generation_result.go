package models

import (
	"time"
)

// GenerationResult - запись журнала об одном обращении к генеративному бэкенду.
// Сохраняется для отладки и разбора некорректных ответов модели.
type GenerationResult struct {
	ID               string    `json:"id" db:"id"`
	SessionID        string    `json:"session_id,omitempty" db:"session_id"`
	Task             TaskKind  `json:"task" db:"task"`
	Backend          string    `json:"backend" db:"backend"`
	Model            string    `json:"model" db:"model"`
	RawOutput        string    `json:"raw_output,omitempty" db:"raw_output"` // Для картинок - пусто
	ErrorKind        string    `json:"error_kind,omitempty" db:"error_kind"`
	Error            string    `json:"error,omitempty" db:"error"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	CompletedAt      time.Time `json:"completed_at" db:"completed_at"`
	ProcessingTimeMs int64     `json:"processing_time_ms" db:"processing_time_ms"`
	PromptTokens     int       `json:"prompt_tokens,omitempty" db:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens,omitempty" db:"completion_tokens"`
}

// SessionEventType - тип события сессии.
type SessionEventType string

const (
	EventArtifactStored   SessionEventType = "artifact_stored"
	EventShotImageUpdated SessionEventType = "shot_image_updated"
	EventSessionReset     SessionEventType = "session_reset"
)

// SessionEvent отправляется в очередь и в websocket при изменении состояния сессии.
type SessionEvent struct {
	Type        SessionEventType `json:"type"`
	SessionID   string           `json:"sessionId"`
	Epoch       uint64           `json:"epoch"`
	Task        TaskKind         `json:"task,omitempty"`
	SceneNumber int              `json:"sceneNumber,omitempty"`
	Shot        *Shot            `json:"shot,omitempty"`
	At          time.Time        `json:"at"`
}
