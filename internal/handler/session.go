package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
	"cinegenius-server/internal/service"
)

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type resetSessionResponse struct {
	SessionID string `json:"sessionId"`
	Epoch     uint64 `json:"epoch"`
}

type questionRequest struct {
	Question string          `json:"question"`
	Language models.Language `json:"language" validate:"omitempty,oneof=English Spanish French German Japanese Chinese"`
}

func (h *Handler) createSession(c *gin.Context) {
	s := h.workflow.Sessions().Create(c.Request.Context())
	c.JSON(http.StatusCreated, createSessionResponse{SessionID: s.ID})
}

func (h *Handler) getSession(c *gin.Context) {
	s, err := h.workflow.Sessions().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.workflow.Sessions().Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) resetSession(c *gin.Context) {
	id := c.Param("id")
	epoch, err := h.workflow.Reset(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resetSessionResponse{SessionID: id, Epoch: epoch})
}

func (h *Handler) analyzeScript(c *gin.Context) {
	var p parseScriptPayload
	if err := h.bindJSON(c, &p); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	analysis, err := h.workflow.AnalyzeScript(c.Request.Context(), c.Param("id"), service.ScriptInput{
		Script:   p.Script,
		File:     p.File,
		Language: p.Language,
	})
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (h *Handler) schedule(c *gin.Context) {
	lang, err := h.languageQuery(c)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	days, err := h.workflow.Schedule(c.Request.Context(), c.Param("id"), lang, regenerateQuery(c))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

// storyboard возвращает шот-лист сразу, картинки приходят событиями shot_image_updated.
func (h *Handler) storyboard(c *gin.Context) {
	sceneNumber, err := sceneNumberParam(c)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	lang, err := h.languageQuery(c)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	list, err := h.workflow.GenerateStoryboard(c.Request.Context(), c.Param("id"), sceneNumber, lang)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, list)
}

func (h *Handler) shots(c *gin.Context) {
	s, err := h.workflow.Sessions().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	list, ok := s.ShotList()
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, APIError{Message: "No shot list has been generated yet."})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) guide(c *gin.Context) {
	sceneNumber, err := sceneNumberParam(c)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	lang, err := h.languageQuery(c)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	guide, err := h.workflow.Guide(c.Request.Context(), c.Param("id"), sceneNumber, lang)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, guide)
}

func (h *Handler) continuity(c *gin.Context) {
	lang, err := h.languageQuery(c)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	report, err := h.workflow.Continuity(c.Request.Context(), c.Param("id"), lang, regenerateQuery(c))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ask(c *gin.Context) {
	var req questionRequest
	if err := h.bindJSON(c, &req); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	turn, err := h.workflow.Ask(c.Request.Context(), c.Param("id"), req.Question, req.Language)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

func (h *Handler) journalEntries(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.workflow.Sessions().Get(c.Request.Context(), id); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	if h.journal == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, APIError{Message: "Generation journal is disabled."})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.journal.ListBySession(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("Failed to list journal entries", zap.String("sessionID", id), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{Message: "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// bindJSON читает тело запроса и проверяет его тегами validate.
func (h *Handler) bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", models.ErrInvalidInput)
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}
