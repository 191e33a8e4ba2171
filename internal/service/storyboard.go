package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cinegenius-server/internal/models"
	"cinegenius-server/internal/session"
)

// GenerateStoryboard генерирует шот-лист сцены и сразу возвращает его с кадрами в загрузке.
// Картинки рисуются в фоне, каждая обновляет только свой кадр и публикует shot_image_updated.
// Шот-лист всегда генерируется заново.
func (w *Workflow) GenerateStoryboard(ctx context.Context, sessionID string, sceneNumber int, lang models.Language) (models.ShotList, error) {
	s, scene, epoch, err := w.scene(ctx, sessionID, sceneNumber)
	if err != nil {
		return models.ShotList{}, err
	}

	shots, err := w.orchestrator.GenerateShotList(WithSessionID(ctx, sessionID), scene, lang)
	if err != nil {
		return models.ShotList{}, err
	}

	for i := range shots {
		shots[i].IsLoadingImage = true
	}
	list := models.ShotList{SceneNumber: sceneNumber, Shots: shots}
	version, ok := s.ApplyShotList(epoch, list)
	if !ok {
		// Сессию сбросили, пока шла генерация: картинки рисовать уже некуда
		w.dropped(s, models.TaskGenerateShotList, epoch)
		for i := range list.Shots {
			list.Shots[i].IsLoadingImage = false
		}
		return list, nil
	}
	w.stored(ctx, s, epoch, models.TaskGenerateShotList, sceneNumber)

	// Запрос клиента может завершиться раньше картинок; генерация доводится до конца.
	bgCtx := WithSessionID(context.WithoutCancel(ctx), sessionID)
	pending := append([]models.Shot(nil), list.Shots...)
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.renderShots(bgCtx, s, epoch, version, scene, pending)
	}()

	return list, nil
}

// renderShots рисует картинки кадров с ограничением параллелизма IMAGE_CONCURRENCY.
// Горутины не возвращают ошибок: отказ одного кадра не отменяет остальные.
// Кадр пишется по позиции в шот-листе версии version; если список успели заменить, картинка отбрасывается.
func (w *Workflow) renderShots(ctx context.Context, s *session.Session, epoch, version uint64, scene models.Scene, shots []models.Shot) {
	started := time.Now()
	log := w.logger.With(zap.String("sessionID", s.ID), zap.Int("scene", scene.SceneNumber))

	var g errgroup.Group
	g.SetLimit(w.imageConcurrency)
	for i, shot := range shots {
		g.Go(func() error {
			imageURL, err := w.orchestrator.GenerateImageForShot(ctx, shot, scene)
			if err != nil {
				log.Warn("Shot image failed", zap.Int("shot", shot.ShotNumber), zap.Error(err))
				imageURL = models.ImageErrorSentinel
			}
			updated, ok := s.UpdateShotImage(epoch, version, i, imageURL)
			if !ok {
				log.Debug("Shot image dropped", zap.Int("shot", shot.ShotNumber), zap.Uint64("epoch", epoch), zap.Uint64("version", version))
				return nil
			}
			w.publish(ctx, models.SessionEvent{
				Type:        models.EventShotImageUpdated,
				SessionID:   s.ID,
				Epoch:       epoch,
				Task:        models.TaskGenerateImageForShot,
				SceneNumber: scene.SceneNumber,
				Shot:        &updated,
			})
			return nil
		})
	}
	_ = g.Wait()

	w.sessions.Persist(ctx, s)
	log.Info("Storyboard images finished", zap.Int("shots", len(shots)), zap.Duration("duration", time.Since(started)))
}
