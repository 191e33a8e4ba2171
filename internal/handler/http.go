package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cinegenius-server/internal/database"
	"cinegenius-server/internal/models"
	"cinegenius-server/internal/service"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// Handler обслуживает stateless proxy и API сессий.
type Handler struct {
	orchestrator *service.Orchestrator
	workflow     *service.Workflow
	journal      database.GenerationResultRepository // nil - журнал отключен
	hub          *EventHub
	validate     *validator.Validate
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

// NewHandler создает Handler. allowedOrigins ограничивает websocket подключения, пустой список - без ограничений.
func NewHandler(
	orchestrator *service.Orchestrator,
	workflow *service.Workflow,
	journal database.GenerationResultRepository,
	hub *EventHub,
	allowedOrigins []string,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		orchestrator: orchestrator,
		workflow:     workflow,
		journal:      journal,
		hub:          hub,
		validate:     validator.New(),
		logger:       logger.Named("Handler"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.Any("/proxy", h.proxy)

	sessions := api.Group("/sessions")
	{
		sessions.POST("", h.createSession)
		sessions.GET("/:id", h.getSession)
		sessions.DELETE("/:id", h.deleteSession)
		sessions.POST("/:id/reset", h.resetSession)
		sessions.POST("/:id/script", h.analyzeScript)
		sessions.POST("/:id/schedule", h.schedule)
		sessions.POST("/:id/scenes/:sceneNumber/shots", h.storyboard)
		sessions.GET("/:id/shots", h.shots)
		sessions.POST("/:id/scenes/:sceneNumber/guide", h.guide)
		sessions.POST("/:id/continuity", h.continuity)
		sessions.POST("/:id/questions", h.ask)
		sessions.GET("/:id/journal", h.journalEntries)
		sessions.GET("/:id/events", h.sessionEvents)
	}
}

func handleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var status int
	message := models.UserMessage(err)

	switch {
	case errors.Is(err, models.ErrEmptyInput), errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNoAnalysis):
		status = http.StatusConflict
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrSceneNotFound),
		errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrTransportFailure),
		errors.Is(err, models.ErrEmptyOutput),
		errors.Is(err, models.ErrMalformedOutput):
		status = http.StatusInternalServerError
	default:
		status = http.StatusInternalServerError
		message = "Internal server error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Warn("Request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.String("reason", message))
	}
	c.AbortWithStatusJSON(status, APIError{Message: message})
}

// validationError превращает ошибки validator в ErrInvalidInput с читаемым описанием полей.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			fields = append(fields, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(fields, "; "))
}

const languageRule = "omitempty,oneof=English Spanish French German Japanese Chinese"

// languageQuery читает ?language=.
func (h *Handler) languageQuery(c *gin.Context) (models.Language, error) {
	lang := c.Query("language")
	if err := h.validate.Var(lang, languageRule); err != nil {
		return "", fmt.Errorf("%w: unsupported language %q", models.ErrInvalidInput, lang)
	}
	return models.Language(lang), nil
}

func sceneNumberParam(c *gin.Context) (int, error) {
	n, err := strconv.Atoi(c.Param("sceneNumber"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: invalid scene number %q", models.ErrInvalidInput, c.Param("sceneNumber"))
	}
	return n, nil
}

func regenerateQuery(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.DefaultQuery("regenerate", "false"))
	return err == nil && v
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
