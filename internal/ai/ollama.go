package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"cinegenius-server/internal/config"
)

const defaultOllamaURL = "http://localhost:11434"

// ollamaClient реализует Client через ollama/api. Генерация картинок не поддерживается.
type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func newOllamaClient(cfg *config.Config, logger *zap.Logger) (Client, error) {
	base := cfg.AIBaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	// api.NewClient ожидает URL без суффикса /v1
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/v1")
	parsedURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", base, err)
	}
	logger.Info("Ollama client created", zap.String("base_url", base), zap.String("model", cfg.AITextModel), zap.Duration("timeout", cfg.AITimeout))
	return &ollamaClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: cfg.AITimeout}),
		model:   cfg.AITextModel,
		timeout: cfg.AITimeout,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaClient) Backend() string { return "ollama" }

func (c *ollamaClient) Invoke(ctx context.Context, req Request) (Outcome, error) {
	started := time.Now()
	log := c.logger.With(zap.String("task", string(req.Task)), zap.String("model", c.model))

	if req.ExpectsImage {
		err := transportError(c.Backend(), errors.New("image generation is not supported"))
		observe(req.Task, c.model, started, Usage{}, err)
		return Outcome{}, err
	}

	messages := make([]api.Message, 0, 2)
	if req.Instruction != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.Instruction})
	}
	user := api.Message{Role: "user", Content: req.Prompt}
	if req.Attachment != nil {
		data, err := decodeAttachment(req.Attachment)
		if err != nil {
			observe(req.Task, c.model, started, Usage{}, err)
			return Outcome{}, err
		}
		if isTextMIME(req.Attachment.MimeType) {
			user.Content = string(data) + "\n\n" + req.Prompt
		} else {
			user.Images = []api.ImageData{data}
		}
	}
	messages = append(messages, user)

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
	}
	if req.Schema != nil {
		raw, err := req.Schema.RawJSON()
		if err != nil {
			err = transportError(c.Backend(), err)
			observe(req.Task, c.model, started, Usage{}, err)
			return Outcome{}, err
		}
		chatReq.Format = raw
	}

	requestCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		requestCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		err = transportError(c.Backend(), err)
		log.Warn("Ollama request failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		observe(req.Task, c.model, started, Usage{}, err)
		return Outcome{}, err
	}

	text := resp.Message.Content
	if strings.TrimSpace(text) == "" {
		err = emptyOutputError(c.Backend(), "empty response")
		log.Warn("Ollama returned no content", zap.Error(err))
		observe(req.Task, c.model, started, Usage{}, err)
		return Outcome{}, err
	}

	usage := Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	if usage.TotalTokens == 0 {
		usage = estimateUsage([]string{req.Instruction, req.Prompt}, text)
	}
	observe(req.Task, c.model, started, usage, nil)
	log.Debug("Ollama response received", zap.Duration("duration", time.Since(started)), zap.Int("response_len", len(text)))
	return Outcome{Text: text, Model: c.model, Usage: usage}, nil
}
