package ai

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
)

// ResultRecorder сохраняет записи журнала генераций.
type ResultRecorder interface {
	Save(ctx context.Context, result *models.GenerationResult) error
}

// journaledClient пишет каждый вызов в журнал. Ошибка записи журнала только логируется.
type journaledClient struct {
	next     Client
	recorder ResultRecorder
	logger   *zap.Logger
	timeout  time.Duration
}

// WithJournal оборачивает клиент записью в журнал. recorder == nil - клиент возвращается как есть.
func WithJournal(next Client, recorder ResultRecorder, logger *zap.Logger) Client {
	if recorder == nil {
		return next
	}
	return &journaledClient{
		next:     next,
		recorder: recorder,
		logger:   logger.Named("Journal"),
		timeout:  5 * time.Second,
	}
}

func (j *journaledClient) Backend() string { return j.next.Backend() }

func (j *journaledClient) Invoke(ctx context.Context, req Request) (Outcome, error) {
	started := time.Now().UTC()
	out, err := j.next.Invoke(ctx, req)
	completed := time.Now().UTC()

	result := &models.GenerationResult{
		ID:               uuid.NewString(),
		SessionID:        req.SessionID,
		Task:             req.Task,
		Backend:          j.next.Backend(),
		Model:            out.Model,
		RawOutput:        out.Text,
		ErrorKind:        models.ErrorKind(err),
		CreatedAt:        started,
		CompletedAt:      completed,
		ProcessingTimeMs: completed.Sub(started).Milliseconds(),
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}
	if err != nil {
		result.Error = err.Error()
	}

	// Журнал не должен зависеть от отмены запроса клиента.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.timeout)
	defer cancel()
	if saveErr := j.recorder.Save(saveCtx, result); saveErr != nil {
		j.logger.Warn("Failed to save generation result",
			zap.String("task", string(req.Task)),
			zap.String("result_id", result.ID),
			zap.Error(saveErr),
		)
	}
	return out, err
}
