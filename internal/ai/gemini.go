package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"cinegenius-server/internal/config"
	"cinegenius-server/internal/schemas"
)

const (
	geminiImageMIME   = "image/jpeg"
	geminiAspectRatio = "16:9"
)

// geminiClient реализует Client через google.golang.org/genai.
type geminiClient struct {
	client     *genai.Client
	textModel  string
	imageModel string
	logger     *zap.Logger
}

func newGeminiClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Client, error) {
	if cfg.AIAPIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.AIAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.AITimeout},
	}
	if cfg.AIBaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.AIBaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	logger.Info("Gemini client created",
		zap.String("text_model", cfg.AITextModel),
		zap.String("image_model", cfg.AIImageModel),
		zap.Duration("timeout", cfg.AITimeout),
	)
	return &geminiClient{
		client:     client,
		textModel:  cfg.AITextModel,
		imageModel: cfg.AIImageModel,
		logger:     logger.Named("GeminiClient"),
	}, nil
}

func (c *geminiClient) Backend() string { return "gemini" }

func (c *geminiClient) Invoke(ctx context.Context, req Request) (Outcome, error) {
	if req.ExpectsImage {
		return c.generateImage(ctx, req)
	}
	return c.generateText(ctx, req)
}

func (c *geminiClient) generateText(ctx context.Context, req Request) (Outcome, error) {
	started := time.Now()
	log := c.logger.With(zap.String("task", string(req.Task)), zap.String("model", c.textModel))

	parts := make([]*genai.Part, 0, 2)
	if req.Attachment != nil {
		data, err := decodeAttachment(req.Attachment)
		if err != nil {
			observe(req.Task, c.textModel, started, Usage{}, err)
			return Outcome{}, err
		}
		parts = append(parts, genai.NewPartFromBytes(data, req.Attachment.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	gcfg := &genai.GenerateContentConfig{}
	if req.Instruction != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.Instruction, genai.RoleUser)
	}
	if req.Schema != nil {
		gcfg.ResponseMIMEType = "application/json"
		gcfg.ResponseSchema = schemas.ToGenAI(req.Schema.Schema)
	}

	log.Debug("Sending request to Gemini", zap.Int("prompt_bytes", len(req.Prompt)), zap.Bool("attachment", req.Attachment != nil))
	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, gcfg)
	if err != nil {
		err = transportError(c.Backend(), err)
		log.Warn("Gemini request failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		observe(req.Task, c.textModel, started, Usage{}, err)
		return Outcome{}, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		err = transportError(c.Backend(), fmt.Errorf("prompt blocked: %s %s", resp.PromptFeedback.BlockReason, resp.PromptFeedback.BlockReasonMessage))
		log.Warn("Gemini blocked prompt", zap.Error(err))
		observe(req.Task, c.textModel, started, Usage{}, err)
		return Outcome{}, err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			err = transportError(c.Backend(), errors.New("response blocked by safety filters"))
		} else {
			err = emptyOutputError(c.Backend(), "empty text")
		}
		log.Warn("Gemini returned no text", zap.Error(err))
		observe(req.Task, c.textModel, started, Usage{}, err)
		return Outcome{}, err
	}

	var usage Usage
	if um := resp.UsageMetadata; um != nil && um.TotalTokenCount > 0 {
		usage = Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	} else {
		usage = estimateUsage([]string{req.Instruction, req.Prompt}, text)
	}
	observe(req.Task, c.textModel, started, usage, nil)
	log.Debug("Gemini response received",
		zap.Duration("duration", time.Since(started)),
		zap.Int("response_len", len(text)),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
	)
	return Outcome{Text: text, Model: c.textModel, Usage: usage}, nil
}

func (c *geminiClient) generateImage(ctx context.Context, req Request) (Outcome, error) {
	started := time.Now()
	log := c.logger.With(zap.String("task", string(req.Task)), zap.String("model", c.imageModel))

	resp, err := c.client.Models.GenerateImages(ctx, c.imageModel, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: geminiImageMIME,
		AspectRatio:    geminiAspectRatio,
	})
	if err != nil {
		err = transportError(c.Backend(), err)
		log.Warn("Imagen request failed", zap.Error(err))
		observe(req.Task, c.imageModel, started, Usage{}, err)
		return Outcome{}, err
	}

	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		// Отфильтрованная картинка - это отказ провайдера, а не пустой ответ.
		if len(resp.GeneratedImages) > 0 && resp.GeneratedImages[0].RAIFilteredReason != "" {
			err = transportError(c.Backend(), fmt.Errorf("image filtered: %s", resp.GeneratedImages[0].RAIFilteredReason))
		} else {
			err = emptyOutputError(c.Backend(), "no image")
		}
		log.Warn("Imagen returned no image", zap.Error(err))
		observe(req.Task, c.imageModel, started, Usage{}, err)
		return Outcome{}, err
	}

	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = geminiImageMIME
	}
	observe(req.Task, c.imageModel, started, Usage{}, nil)
	log.Debug("Imagen image received", zap.Int("size_bytes", len(img.ImageBytes)), zap.Duration("duration", time.Since(started)))
	return Outcome{Image: img.ImageBytes, MIMEType: mime, Model: c.imageModel}, nil
}
