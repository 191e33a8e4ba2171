package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"cinegenius-server/internal/models"
	"cinegenius-server/internal/schemas"
)

// stripFences убирает markdown-обертку ```json ... ``` вокруг ответа модели.
// Повторный вызов ничего не меняет.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Тег языка после открывающих кавычек (```json)
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSpace(s)
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Extract разбирает сырой текст модели в T, проверяя его по схеме задачи.
// Пустой ответ - models.ErrEmptyOutput, невалидный JSON или несовпадение со схемой - models.ErrMalformedOutput.
func Extract[T any](raw string, task models.TaskKind) (T, error) {
	var zero T
	label := task.Label()

	body := stripFences(raw)
	if body == "" {
		te := models.NewTaskError(task, models.ErrEmptyOutput,
			fmt.Sprintf("Received an empty response from the AI for %s.", label), nil)
		te.Raw = raw
		return zero, te
	}

	malformed := func(cause error) error {
		te := models.NewTaskError(task, models.ErrMalformedOutput,
			fmt.Sprintf("The AI returned an invalid format for %s.", label), cause)
		te.Raw = raw
		return te
	}

	if entry, ok := schemas.Lookup(task); ok {
		value, err := schemas.Decode([]byte(body))
		if err != nil {
			return zero, malformed(err)
		}
		if err := schemas.Check(value, entry.Schema); err != nil {
			return zero, malformed(err)
		}
	}

	var out T
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return zero, malformed(err)
	}
	return out, nil
}
