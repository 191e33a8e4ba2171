package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"cinegenius-server/internal/config"
	"cinegenius-server/internal/models"
	"cinegenius-server/internal/schemas"

	"go.uber.org/zap"
)

// Usage содержит информацию об использовании токенов.
// Estimated == true, если бэкенд не вернул usage и значения посчитаны tiktoken.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool
}

// Request - один запрос к генеративному бэкенду.
type Request struct {
	Task        models.TaskKind
	SessionID   string // только для журнала, может быть пустым
	Instruction string // системная инструкция
	Prompt      string
	Attachment  *models.InlineData
	// Schema - ограничение на формат ответа; nil для свободного текста и картинок.
	Schema       *schemas.Entry
	ExpectsImage bool
}

// Outcome - результат успешного вызова. Для текстовых задач заполнен Text, для картинок - Image.
type Outcome struct {
	Text     string
	Image    []byte
	MIMEType string
	Model    string
	Usage    Usage
}

// Client - единая точка вызова генеративного бэкенда.
// Ровно один исходящий запрос на вызов, без повторов.
// Ошибки оборачивают models.ErrTransportFailure или models.ErrEmptyOutput.
type Client interface {
	Invoke(ctx context.Context, req Request) (Outcome, error)
	// Backend возвращает имя реализации (gemini, openai, ollama).
	Backend() string
}

// NewClient создает клиент в зависимости от AI_CLIENT_TYPE.
func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Client, error) {
	switch strings.ToLower(cfg.AIClientType) {
	case "gemini", "":
		return newGeminiClient(ctx, cfg, logger)
	case "openai":
		return newOpenAIClient(cfg, logger), nil
	case "ollama":
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("неподдерживаемый тип AI клиента: %s", cfg.AIClientType)
	}
}

// decodeAttachment раскодирует base64 вложения. Ошибка считается ошибкой запроса к бэкенду.
func decodeAttachment(att *models.InlineData) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: attachment is not valid base64: %v", models.ErrTransportFailure, err)
	}
	return data, nil
}

// isTextMIME - вложения text/* передаются бэкендам без поддержки файлов как обычный текст.
func isTextMIME(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "text/")
}

func transportError(backend string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrTransportFailure, backend, err)
}

func emptyOutputError(backend, what string) error {
	return fmt.Errorf("%w: %s returned %s", models.ErrEmptyOutput, backend, what)
}
