package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cinegenius-server/internal/messaging"
	"cinegenius-server/internal/models"
	"cinegenius-server/internal/session"
)

const (
	publishTimeout = 3 * time.Second
	errorReplyFmt  = "Sorry, I encountered an error: %s"
)

// Workflow - задачи генерации поверх состояния сессии. Каждый артефакт генерируется один раз
// и переиспользуется, пока сессия не сброшена или не загружен новый сценарий.
type Workflow struct {
	orchestrator     *Orchestrator
	sessions         *session.Manager
	publisher        messaging.EventPublisher
	imageConcurrency int
	logger           *zap.Logger

	inflight sync.WaitGroup // раскадровки в фоне
}

func NewWorkflow(orchestrator *Orchestrator, sessions *session.Manager, publisher messaging.EventPublisher, imageConcurrency int, logger *zap.Logger) *Workflow {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	if imageConcurrency < 1 {
		imageConcurrency = 1
	}
	return &Workflow{
		orchestrator:     orchestrator,
		sessions:         sessions,
		publisher:        publisher,
		imageConcurrency: imageConcurrency,
		logger:           logger.Named("Workflow"),
	}
}

// Sessions возвращает менеджер сессий.
func (w *Workflow) Sessions() *session.Manager { return w.sessions }

func (w *Workflow) publish(ctx context.Context, event models.SessionEvent) {
	event.At = time.Now().UTC()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := w.publisher.PublishSessionEvent(pubCtx, event); err != nil {
		w.logger.Warn("Failed to publish session event",
			zap.String("sessionID", event.SessionID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// stored сохраняет снимок и оповещает о новом артефакте.
func (w *Workflow) stored(ctx context.Context, s *session.Session, epoch uint64, task models.TaskKind, sceneNumber int) {
	w.sessions.Persist(ctx, s)
	w.publish(ctx, models.SessionEvent{
		Type:        models.EventArtifactStored,
		SessionID:   s.ID,
		Epoch:       epoch,
		Task:        task,
		SceneNumber: sceneNumber,
	})
}

func (w *Workflow) dropped(s *session.Session, task models.TaskKind, epoch uint64) {
	w.logger.Info("Stale result dropped",
		zap.String("sessionID", s.ID),
		zap.String("task", string(task)),
		zap.Uint64("epoch", epoch),
	)
}

// analyzed возвращает сессию и ее разбор, models.ErrNoAnalysis если сценарий не загружен.
func (w *Workflow) analyzed(ctx context.Context, sessionID string) (*session.Session, models.ScriptAnalysis, error) {
	s, err := w.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, models.ScriptAnalysis{}, err
	}
	analysis, ok := s.Analysis()
	if !ok {
		return nil, models.ScriptAnalysis{}, models.ErrNoAnalysis
	}
	return s, analysis, nil
}

// scene возвращает сцену текущего разбора и epoch, к которому этот разбор относится.
func (w *Workflow) scene(ctx context.Context, sessionID string, sceneNumber int) (*session.Session, models.Scene, uint64, error) {
	s, err := w.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, models.Scene{}, 0, err
	}
	analysis, epoch, ok := s.Current()
	if !ok {
		return nil, models.Scene{}, 0, models.ErrNoAnalysis
	}
	scene, ok := analysis.FindScene(sceneNumber)
	if !ok {
		return nil, models.Scene{}, 0, models.ErrSceneNotFound
	}
	return s, scene, epoch, nil
}

// AnalyzeScript разбирает сценарий и делает его текущим для сессии.
func (w *Workflow) AnalyzeScript(ctx context.Context, sessionID string, in ScriptInput) (models.ScriptAnalysis, error) {
	s, err := w.sessions.Get(ctx, sessionID)
	if err != nil {
		return models.ScriptAnalysis{}, err
	}
	epoch := s.Epoch()
	analysis, err := w.orchestrator.ParseScript(WithSessionID(ctx, sessionID), in)
	if err != nil {
		return models.ScriptAnalysis{}, err
	}
	next, ok := s.ApplyAnalysis(epoch, analysis)
	if !ok {
		w.dropped(s, models.TaskParseScript, epoch)
		return analysis, nil
	}
	w.stored(ctx, s, next, models.TaskParseScript, 0)
	return analysis, nil
}

// Schedule возвращает съемочный график, генерируя его при первом обращении или при regenerate.
func (w *Workflow) Schedule(ctx context.Context, sessionID string, lang models.Language, regenerate bool) ([]models.ScheduleDay, error) {
	s, analysis, err := w.analyzed(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !regenerate {
		if days, ok := s.Schedule(); ok {
			return days, nil
		}
	}
	epoch := s.Epoch()
	days, err := w.orchestrator.GenerateSchedule(WithSessionID(ctx, sessionID), analysis, lang)
	if err != nil {
		return nil, err
	}
	if s.ApplySchedule(epoch, days) {
		w.stored(ctx, s, epoch, models.TaskGenerateSchedule, 0)
	} else {
		w.dropped(s, models.TaskGenerateSchedule, epoch)
	}
	return days, nil
}

// Guide возвращает постановочный гайд сцены. Для одной сцены одновременно идет не больше одной генерации.
func (w *Workflow) Guide(ctx context.Context, sessionID string, sceneNumber int, lang models.Language) (models.ProductionBible, error) {
	s, scene, epoch, err := w.scene(ctx, sessionID, sceneNumber)
	if err != nil {
		return models.ProductionBible{}, err
	}
	if guide, ok := s.Guide(sceneNumber); ok {
		return guide, nil
	}

	// Генерацию разделяют несколько запросов, отключение первого клиента ее не прерывает.
	flightCtx := WithSessionID(context.WithoutCancel(ctx), sessionID)
	guide, err, shared := s.DoGuide(epoch, sceneNumber, func() (models.ProductionBible, error) {
		if cached, ok := s.Guide(sceneNumber); ok && s.Epoch() == epoch {
			return cached, nil
		}
		generated, err := w.orchestrator.GenerateSceneProductionGuide(flightCtx, scene, lang)
		if err != nil {
			return models.ProductionBible{}, err
		}
		if s.ApplyGuide(epoch, sceneNumber, generated) {
			w.stored(flightCtx, s, epoch, models.TaskGenerateSceneProductionGuide, sceneNumber)
		} else {
			w.dropped(s, models.TaskGenerateSceneProductionGuide, epoch)
		}
		return generated, nil
	})
	if shared {
		w.logger.Debug("Production guide shared between concurrent requests", zap.String("sessionID", sessionID), zap.Int("scene", sceneNumber))
	}
	return guide, err
}

// Continuity возвращает отчет о непрерывности, генерируя его при первом обращении или при regenerate.
func (w *Workflow) Continuity(ctx context.Context, sessionID string, lang models.Language, regenerate bool) (models.ContinuityAnalysis, error) {
	s, analysis, err := w.analyzed(ctx, sessionID)
	if err != nil {
		return models.ContinuityAnalysis{}, err
	}
	if !regenerate {
		if report, ok := s.Continuity(); ok {
			return report, nil
		}
	}
	epoch := s.Epoch()
	report, err := w.orchestrator.GenerateContinuityReport(WithSessionID(ctx, sessionID), analysis, lang)
	if err != nil {
		return models.ContinuityAnalysis{}, err
	}
	if s.ApplyContinuity(epoch, report) {
		w.stored(ctx, s, epoch, models.TaskGenerateContinuityReport, 0)
	} else {
		w.dropped(s, models.TaskGenerateContinuityReport, epoch)
	}
	return report, nil
}

// Ask задает вопрос ассистенту. Вопрос и pending-реплика добавляются в диалог сразу,
// pending-реплика заменяется ответом или сообщением об ошибке.
func (w *Workflow) Ask(ctx context.Context, sessionID, question string, lang models.Language) (models.ConversationTurn, error) {
	s, analysis, err := w.analyzed(ctx, sessionID)
	if err != nil {
		return models.ConversationTurn{}, err
	}
	if strings.TrimSpace(question) == "" {
		return models.ConversationTurn{}, models.NewTaskError(models.TaskAskScriptQuestion, models.ErrEmptyInput, emptyQuestionMessage, nil)
	}

	ticket := s.AppendQuestion(question)
	answer, askErr := w.orchestrator.AskScriptQuestion(WithSessionID(ctx, sessionID), analysis, question, lang)
	content := answer
	if askErr != nil {
		content = fmt.Sprintf(errorReplyFmt, models.UserMessage(askErr))
	}
	if s.ResolvePending(ticket, content) {
		w.stored(ctx, s, s.Epoch(), models.TaskAskScriptQuestion, 0)
	}
	if askErr != nil {
		return models.ConversationTurn{}, askErr
	}
	return models.ConversationTurn{Role: models.RoleAssistant, Content: answer}, nil
}

// Reset очищает сессию. Генерации в полете доработают, но их результаты будут отброшены.
func (w *Workflow) Reset(ctx context.Context, sessionID string) (uint64, error) {
	epoch, err := w.sessions.Reset(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	w.publish(ctx, models.SessionEvent{Type: models.EventSessionReset, SessionID: sessionID, Epoch: epoch})
	return epoch, nil
}

// Wait ждет завершения фоновых раскадровок или отмены ctx.
func (w *Workflow) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
