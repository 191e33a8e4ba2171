package models

import (
	"errors"
	"fmt"
)

// Классы ошибок задач генерации.
var (
	ErrEmptyInput       = errors.New("empty input")
	ErrTransportFailure = errors.New("generative backend request failed")
	ErrEmptyOutput      = errors.New("empty output from generative backend")
	ErrMalformedOutput  = errors.New("malformed output from generative backend")
)

// Ошибки сессий и прочие ошибки уровня API.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSceneNotFound   = errors.New("scene not found")
	ErrNoAnalysis      = errors.New("script has not been analyzed yet")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input data")
)

// ErrorKind возвращает короткий код класса ошибки (для метрик и журнала).
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	case errors.Is(err, ErrEmptyOutput):
		return "empty_output"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	default:
		return "internal"
	}
}

// TaskError - классифицированная ошибка задачи генерации.
// Message показывается пользователю как есть, Raw хранит сырой ответ модели для диагностики.
type TaskError struct {
	Task    TaskKind
	Kind    error
	Message string
	Raw     string
	Err     error
}

// NewTaskError собирает ошибку задачи. kind должен быть одним из Err* классов выше.
func NewTaskError(task TaskKind, kind error, message string, cause error) *TaskError {
	return &TaskError{Task: task, Kind: kind, Message: message, Err: cause}
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Task, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Task, e.Message)
}

// Unwrap позволяет errors.Is находить и класс ошибки, и исходную причину.
func (e *TaskError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// UserMessage возвращает сообщение для клиента. Для не-TaskError ошибок - err.Error().
func UserMessage(err error) string {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
