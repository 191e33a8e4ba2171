package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
	"cinegenius-server/internal/service"
)

type proxyRequest struct {
	Action  models.TaskKind `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type parseScriptPayload struct {
	Script   string             `json:"script"`
	File     *models.InlineData `json:"file" validate:"omitempty"`
	Language models.Language    `json:"language" validate:"omitempty,oneof=English Spanish French German Japanese Chinese"`
}

type analysisPayload struct {
	Analysis *models.ScriptAnalysis `json:"analysis" validate:"required"`
	Language models.Language        `json:"language" validate:"omitempty,oneof=English Spanish French German Japanese Chinese"`
}

type scenePayload struct {
	Scene    *models.Scene   `json:"scene" validate:"required"`
	Language models.Language `json:"language" validate:"omitempty,oneof=English Spanish French German Japanese Chinese"`
}

type imagePayload struct {
	Shot  *models.Shot  `json:"shot" validate:"required"`
	Scene *models.Scene `json:"scene" validate:"required"`
}

type questionPayload struct {
	Analysis *models.ScriptAnalysis `json:"analysis" validate:"required"`
	Question string                 `json:"question"`
	Language models.Language        `json:"language" validate:"omitempty,oneof=English Spanish French German Japanese Chinese"`
}

// proxy - stateless вызов одной задачи: {action, payload} -> JSON результата.
func (h *Handler) proxy(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, APIError{Message: "Method Not Allowed"})
		return
	}

	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid proxy request body", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
		return
	}
	if !models.IsValidTaskKind(req.Action) {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: fmt.Sprintf("Invalid action: %s", req.Action)})
		return
	}

	result, err := h.dispatch(c, req)
	if err != nil {
		handleServiceError(c, h.logger.With(zap.String("action", string(req.Action))), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) dispatch(c *gin.Context, req proxyRequest) (any, error) {
	ctx := c.Request.Context()
	switch req.Action {
	case models.TaskParseScript:
		var p parseScriptPayload
		if err := h.decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.orchestrator.ParseScript(ctx, service.ScriptInput{Script: p.Script, File: p.File, Language: p.Language})

	case models.TaskGenerateSchedule:
		var p analysisPayload
		if err := h.decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.orchestrator.GenerateSchedule(ctx, *p.Analysis, p.Language)

	case models.TaskGenerateShotList:
		var p scenePayload
		if err := h.decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.orchestrator.GenerateShotList(ctx, *p.Scene, p.Language)

	case models.TaskGenerateImageForShot:
		var p imagePayload
		if err := h.decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.orchestrator.GenerateImageForShot(ctx, *p.Shot, *p.Scene)

	case models.TaskGenerateSceneProductionGuide:
		var p scenePayload
		if err := h.decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.orchestrator.GenerateSceneProductionGuide(ctx, *p.Scene, p.Language)

	case models.TaskGenerateContinuityReport:
		var p analysisPayload
		if err := h.decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.orchestrator.GenerateContinuityReport(ctx, *p.Analysis, p.Language)

	case models.TaskAskScriptQuestion:
		var p questionPayload
		if err := h.decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.orchestrator.AskScriptQuestion(ctx, *p.Analysis, p.Question, p.Language)
	}
	return nil, fmt.Errorf("%w: Invalid action: %s", models.ErrInvalidInput, req.Action)
}

// decodePayload разбирает payload и проверяет его тегами validate. Пустой payload - пустой объект.
func (h *Handler) decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, dst); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				return fmt.Errorf("%w: field %s has wrong type", models.ErrInvalidInput, typeErr.Field)
			}
			return fmt.Errorf("%w: malformed payload", models.ErrInvalidInput)
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}
