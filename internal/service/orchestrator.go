package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cinegenius-server/internal/ai"
	"cinegenius-server/internal/models"
	"cinegenius-server/internal/schemas"
)

const (
	emptyScriptMessage    = "A script must be provided either as text or as a file."
	imageFailedMessage    = "Image generation failed. The prompt may have been blocked by safety policies or the service is temporarily unavailable."
	emptyAssistantMessage = "Received an empty response from the AI assistant."
	emptyQuestionMessage  = "A question must be provided."
)

type sessionIDKey struct{}

// WithSessionID кладет ID сессии в контекст, чтобы он попал в журнал генераций.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

func sessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// ScriptInput - входные данные разбора сценария. Если переданы и текст, и файл, используется файл.
type ScriptInput struct {
	Script   string
	File     *models.InlineData
	Language models.Language
}

// Orchestrator выполняет задачи генерации: собирает запрос, вызывает бэкенд, разбирает ответ.
// Состояние не хранит, повторов не делает.
type Orchestrator struct {
	client ai.Client
	logger *zap.Logger
}

func NewOrchestrator(client ai.Client, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client: client,
		logger: logger.Named("Orchestrator"),
	}
}

// invoke выполняет один вызов бэкенда и приводит ошибку к *models.TaskError.
func (o *Orchestrator) invoke(ctx context.Context, req ai.Request) (ai.Outcome, error) {
	req.SessionID = sessionIDFrom(ctx)
	log := o.logger.With(zap.String("task", string(req.Task)), zap.String("session_id", req.SessionID))

	started := time.Now()
	out, err := o.client.Invoke(ctx, req)
	if err != nil {
		log.Warn("Generation failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		return ai.Outcome{}, o.classify(req.Task, err)
	}
	log.Info("Generation completed", zap.Duration("duration", time.Since(started)), zap.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}

func (o *Orchestrator) classify(task models.TaskKind, err error) error {
	var te *models.TaskError
	if errors.As(err, &te) {
		return te
	}
	label := task.Label()
	if errors.Is(err, models.ErrEmptyOutput) {
		return models.NewTaskError(task, models.ErrEmptyOutput,
			fmt.Sprintf("Received an empty response from the AI for %s.", label), err)
	}
	return models.NewTaskError(task, models.ErrTransportFailure,
		fmt.Sprintf("The AI service request failed for %s.", label), err)
}

func (o *Orchestrator) structured(ctx context.Context, task models.TaskKind, instruction, prompt string, attachment *models.InlineData) (string, error) {
	entry := schemas.MustLookup(task)
	out, err := o.invoke(ctx, ai.Request{
		Task:        task,
		Instruction: instruction,
		Prompt:      prompt,
		Attachment:  attachment,
		Schema:      &entry,
	})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// ParseScript разбирает сценарий в ScriptAnalysis.
func (o *Orchestrator) ParseScript(ctx context.Context, in ScriptInput) (models.ScriptAnalysis, error) {
	task := models.TaskParseScript
	lang := in.Language.OrDefault()

	var prompt string
	var attachment *models.InlineData
	switch {
	case in.File != nil && in.File.Data != "":
		attachment = in.File
		prompt = withLanguage(parseScriptFilePrompt, lang)
	case strings.TrimSpace(in.Script) != "":
		prompt = in.Script
	default:
		return models.ScriptAnalysis{}, models.NewTaskError(task, models.ErrEmptyInput, emptyScriptMessage, nil)
	}

	raw, err := o.structured(ctx, task, withLanguage(parseScriptInstruction, lang), prompt, attachment)
	if err != nil {
		return models.ScriptAnalysis{}, err
	}
	return Extract[models.ScriptAnalysis](raw, task)
}

// GenerateSchedule строит съемочный график по сценам разбора.
func (o *Orchestrator) GenerateSchedule(ctx context.Context, analysis models.ScriptAnalysis, lang models.Language) ([]models.ScheduleDay, error) {
	task := models.TaskGenerateSchedule
	prompt, err := schedulePrompt(analysis.Scenes)
	if err != nil {
		return nil, models.NewTaskError(task, models.ErrInvalidInput, "Failed to encode the scene breakdown.", err)
	}
	raw, err := o.structured(ctx, task, withLanguage(scheduleInstruction, lang), prompt, nil)
	if err != nil {
		return nil, err
	}
	return Extract[[]models.ScheduleDay](raw, task)
}

// GenerateShotList строит шот-лист сцены. Поля картинки у кадров сбрасываются.
func (o *Orchestrator) GenerateShotList(ctx context.Context, scene models.Scene, lang models.Language) ([]models.Shot, error) {
	task := models.TaskGenerateShotList
	raw, err := o.structured(ctx, task, withLanguage(shotListInstruction, lang), shotListPrompt(scene), nil)
	if err != nil {
		return nil, err
	}
	shots, err := Extract[[]models.Shot](raw, task)
	if err != nil {
		return nil, err
	}
	for i := range shots {
		shots[i].ImageURL = ""
		shots[i].IsLoadingImage = false
	}
	return shots, nil
}

// GenerateImageForShot рисует кадр и возвращает data URL.
func (o *Orchestrator) GenerateImageForShot(ctx context.Context, shot models.Shot, scene models.Scene) (string, error) {
	task := models.TaskGenerateImageForShot
	out, err := o.invoke(ctx, ai.Request{
		Task:         task,
		Prompt:       imagePrompt(shot, scene),
		ExpectsImage: true,
	})
	if err != nil {
		kind := models.ErrTransportFailure
		if errors.Is(err, models.ErrEmptyOutput) {
			kind = models.ErrEmptyOutput
		}
		return "", models.NewTaskError(task, kind, imageFailedMessage, err)
	}
	if len(out.Image) == 0 {
		return "", models.NewTaskError(task, models.ErrEmptyOutput, imageFailedMessage, nil)
	}
	mime := out.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(out.Image), nil
}

// GenerateSceneProductionGuide строит постановочный гайд по сцене.
func (o *Orchestrator) GenerateSceneProductionGuide(ctx context.Context, scene models.Scene, lang models.Language) (models.ProductionBible, error) {
	task := models.TaskGenerateSceneProductionGuide
	raw, err := o.structured(ctx, task, withLanguage(productionGuideInstruction, lang), productionGuidePrompt(scene), nil)
	if err != nil {
		return models.ProductionBible{}, err
	}
	return Extract[models.ProductionBible](raw, task)
}

// GenerateContinuityReport ищет нарушения непрерывности по всему сценарию.
func (o *Orchestrator) GenerateContinuityReport(ctx context.Context, analysis models.ScriptAnalysis, lang models.Language) (models.ContinuityAnalysis, error) {
	task := models.TaskGenerateContinuityReport
	prompt, err := continuityPrompt(analysis)
	if err != nil {
		return models.ContinuityAnalysis{}, models.NewTaskError(task, models.ErrInvalidInput, "Failed to encode the script breakdown.", err)
	}
	raw, err := o.structured(ctx, task, withLanguage(continuityInstruction, lang), prompt, nil)
	if err != nil {
		return models.ContinuityAnalysis{}, err
	}
	report, err := Extract[models.ContinuityAnalysis](raw, task)
	if err != nil {
		return models.ContinuityAnalysis{}, err
	}
	report.Normalize()
	return report, nil
}

// AskScriptQuestion отвечает на вопрос по разбору сценария свободным текстом (markdown).
func (o *Orchestrator) AskScriptQuestion(ctx context.Context, analysis models.ScriptAnalysis, question string, lang models.Language) (string, error) {
	task := models.TaskAskScriptQuestion
	if strings.TrimSpace(question) == "" {
		return "", models.NewTaskError(task, models.ErrEmptyInput, emptyQuestionMessage, nil)
	}
	instruction, err := assistantSystemInstruction(analysis, lang)
	if err != nil {
		return "", models.NewTaskError(task, models.ErrInvalidInput, "Failed to encode the script breakdown.", err)
	}

	out, err := o.invoke(ctx, ai.Request{
		Task:        task,
		Instruction: instruction,
		Prompt:      question,
	})
	if err != nil {
		if errors.Is(err, models.ErrEmptyOutput) {
			return "", models.NewTaskError(task, models.ErrEmptyOutput, emptyAssistantMessage, err)
		}
		return "", err
	}
	answer := strings.TrimSpace(out.Text)
	if answer == "" {
		return "", models.NewTaskError(task, models.ErrEmptyOutput, emptyAssistantMessage, nil)
	}
	return answer, nil
}
