package database

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
)

const (
	saveGenerationResultQuery = `
		INSERT INTO generation_results (
			id, session_id, task, backend, model, raw_output, error_kind, error,
			created_at, completed_at, processing_time_ms, prompt_tokens, completion_tokens
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			raw_output = EXCLUDED.raw_output,
			error_kind = EXCLUDED.error_kind,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at,
			processing_time_ms = EXCLUDED.processing_time_ms,
			prompt_tokens = EXCLUDED.prompt_tokens,
			completion_tokens = EXCLUDED.completion_tokens
	`
	listGenerationResultsBySessionQuery = `
		SELECT
			id, session_id, task, backend, model, raw_output, error_kind, error,
			created_at, completed_at, processing_time_ms, prompt_tokens, completion_tokens
		FROM generation_results
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	defaultListLimit = 50
	maxListLimit     = 500
)

// GenerationResultRepository - журнал обращений к генеративному бэкенду.
type GenerationResultRepository interface {
	Save(ctx context.Context, result *models.GenerationResult) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.GenerationResult, error)
}

type pgGenerationResultRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgGenerationResultRepository создает репозиторий журнала генераций поверх pgx пула.
func NewPgGenerationResultRepository(pool *pgxpool.Pool, logger *zap.Logger) *pgGenerationResultRepository {
	return &pgGenerationResultRepository{
		pool:   pool,
		logger: logger.Named("GenerationResultRepo"),
	}
}

// Save сохраняет или обновляет запись журнала.
func (r *pgGenerationResultRepository) Save(ctx context.Context, result *models.GenerationResult) error {
	tag, err := r.pool.Exec(ctx, saveGenerationResultQuery,
		result.ID,
		result.SessionID,
		result.Task,
		result.Backend,
		result.Model,
		result.RawOutput,
		result.ErrorKind,
		result.Error,
		result.CreatedAt,
		result.CompletedAt,
		result.ProcessingTimeMs,
		result.PromptTokens,
		result.CompletionTokens,
	)
	if err != nil {
		r.logger.Error("Failed to save GenerationResult", zap.String("id", result.ID), zap.Error(err))
		return fmt.Errorf("error saving generation result: %w", err)
	}
	r.logger.Debug("GenerationResult saved", zap.String("id", result.ID), zap.Int64("rows_affected", tag.RowsAffected()))
	return nil
}

// ListBySession возвращает последние записи журнала сессии, новые первыми.
func (r *pgGenerationResultRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.GenerationResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	results := make([]*models.GenerationResult, 0)
	if err := pgxscan.Select(ctx, r.pool, &results, listGenerationResultsBySessionQuery, sessionID, limit); err != nil {
		r.logger.Error("Failed to list generation results", zap.String("sessionID", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to list generation results for session %s: %w", sessionID, err)
	}
	return results, nil
}
