package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"cinegenius-server/internal/config"
)

// openAIClient реализует Client через go-openai (OpenAI и совместимые API, например OpenRouter).
type openAIClient struct {
	client     *openaigo.Client
	textModel  string
	imageModel string
	logger     *zap.Logger
}

func newOpenAIClient(cfg *config.Config, logger *zap.Logger) Client {
	openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
	if cfg.AIBaseURL != "" {
		openaiConfig.BaseURL = cfg.AIBaseURL
	}
	openaiConfig.HTTPClient = &http.Client{Timeout: cfg.AITimeout}
	logger.Info("OpenAI client created",
		zap.String("base_url", openaiConfig.BaseURL),
		zap.String("text_model", cfg.AITextModel),
		zap.String("image_model", cfg.AIImageModel),
		zap.Duration("timeout", cfg.AITimeout),
	)
	return &openAIClient{
		client:     openaigo.NewClientWithConfig(openaiConfig),
		textModel:  cfg.AITextModel,
		imageModel: cfg.AIImageModel,
		logger:     logger.Named("OpenAIClient"),
	}
}

func (c *openAIClient) Backend() string { return "openai" }

func (c *openAIClient) Invoke(ctx context.Context, req Request) (Outcome, error) {
	if req.ExpectsImage {
		return c.generateImage(ctx, req)
	}
	return c.generateText(ctx, req)
}

func (c *openAIClient) generateText(ctx context.Context, req Request) (Outcome, error) {
	started := time.Now()
	log := c.logger.With(zap.String("task", string(req.Task)), zap.String("model", c.textModel))

	instruction := req.Instruction
	var responseFormat *openaigo.ChatCompletionResponseFormat
	if req.Schema != nil {
		raw, err := req.Schema.RawJSON()
		if err != nil {
			err = transportError(c.Backend(), err)
			observe(req.Task, c.textModel, started, Usage{}, err)
			return Outcome{}, err
		}
		if req.Schema.Schema["type"] == "object" {
			responseFormat = &openaigo.ChatCompletionResponseFormat{
				Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
					Name:   req.Schema.Name,
					Schema: raw,
					Strict: false,
				},
			}
		} else {
			// json_schema в OpenAI принимает только объект на верхнем уровне; для массивов схема уходит в инструкцию.
			instruction = schemaInInstruction(instruction, string(raw))
		}
	}

	messages := make([]openaigo.ChatCompletionMessage, 0, 2)
	if instruction != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleSystem, Content: instruction})
	}
	user, err := c.userMessage(req)
	if err != nil {
		observe(req.Task, c.textModel, started, Usage{}, err)
		return Outcome{}, err
	}
	messages = append(messages, user)

	log.Debug("Sending request to OpenAI", zap.Int("prompt_bytes", len(req.Prompt)), zap.Bool("attachment", req.Attachment != nil))
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:          c.textModel,
		Messages:       messages,
		ResponseFormat: responseFormat,
	})
	if err != nil {
		err = transportError(c.Backend(), err)
		log.Warn("OpenAI request failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		observe(req.Task, c.textModel, started, Usage{}, err)
		return Outcome{}, err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		if len(resp.Choices) > 0 && resp.Choices[0].FinishReason == openaigo.FinishReasonContentFilter {
			err = transportError(c.Backend(), fmt.Errorf("response blocked by content filter"))
		} else {
			err = emptyOutputError(c.Backend(), "empty response")
		}
		log.Warn("OpenAI returned no content", zap.Error(err))
		observe(req.Task, c.textModel, started, Usage{}, err)
		return Outcome{}, err
	}

	text := resp.Choices[0].Message.Content
	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = estimateUsage([]string{instruction, req.Prompt}, text)
	}
	observe(req.Task, c.textModel, started, usage, nil)
	log.Debug("OpenAI response received",
		zap.Duration("duration", time.Since(started)),
		zap.Int("response_len", len(text)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return Outcome{Text: text, Model: c.textModel, Usage: usage}, nil
}

// userMessage собирает сообщение пользователя. text/* вложения вставляются текстом,
// остальные уходят как data URL картинки.
func (c *openAIClient) userMessage(req Request) (openaigo.ChatCompletionMessage, error) {
	if req.Attachment == nil {
		return openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: req.Prompt}, nil
	}
	data, err := decodeAttachment(req.Attachment)
	if err != nil {
		return openaigo.ChatCompletionMessage{}, err
	}
	if isTextMIME(req.Attachment.MimeType) {
		return openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: string(data) + "\n\n" + req.Prompt,
		}, nil
	}
	return openaigo.ChatCompletionMessage{
		Role: openaigo.ChatMessageRoleUser,
		MultiContent: []openaigo.ChatMessagePart{
			{
				Type: openaigo.ChatMessagePartTypeImageURL,
				ImageURL: &openaigo.ChatMessageImageURL{
					URL: "data:" + req.Attachment.MimeType + ";base64," + req.Attachment.Data,
				},
			},
			{Type: openaigo.ChatMessagePartTypeText, Text: req.Prompt},
		},
	}, nil
}

func (c *openAIClient) generateImage(ctx context.Context, req Request) (Outcome, error) {
	started := time.Now()
	log := c.logger.With(zap.String("task", string(req.Task)), zap.String("model", c.imageModel))

	resp, err := c.client.CreateImage(ctx, openaigo.ImageRequest{
		Prompt:         req.Prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           openaigo.CreateImageSize1792x1024,
		ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		err = transportError(c.Backend(), err)
		log.Warn("OpenAI image request failed", zap.Error(err))
		observe(req.Task, c.imageModel, started, Usage{}, err)
		return Outcome{}, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		err = emptyOutputError(c.Backend(), "no image")
		observe(req.Task, c.imageModel, started, Usage{}, err)
		return Outcome{}, err
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		err = transportError(c.Backend(), fmt.Errorf("invalid b64_json: %w", err))
		observe(req.Task, c.imageModel, started, Usage{}, err)
		return Outcome{}, err
	}
	observe(req.Task, c.imageModel, started, Usage{}, nil)
	return Outcome{Image: img, MIMEType: "image/png", Model: c.imageModel}, nil
}

// schemaInInstruction дописывает JSON-схему в системную инструкцию.
func schemaInInstruction(instruction, schema string) string {
	var b strings.Builder
	b.WriteString(instruction)
	if instruction != "" {
		b.WriteString("\n\n")
	}
	b.WriteString("Respond ONLY with JSON that matches this JSON schema, with no commentary:\n```json\n")
	b.WriteString(schema)
	b.WriteString("\n```")
	return b.String()
}
