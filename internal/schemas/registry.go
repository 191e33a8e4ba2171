package schemas

import (
	"encoding/json"
	"fmt"

	"cinegenius-server/internal/models"
)

// Schema - описание структуры ответа в формате JSON Schema (подмножество).
// Используется и как подсказка генеративному бэкенду, и как цель для проверки ответа.
type Schema = map[string]interface{}

// Entry - запись реестра для одного типа задачи.
type Entry struct {
	Name   string
	Schema Schema
}

func str(description string) Schema {
	s := Schema{"type": "string"}
	if description != "" {
		s["description"] = description
	}
	return s
}

func integer(description string) Schema {
	s := Schema{"type": "integer"}
	if description != "" {
		s["description"] = description
	}
	return s
}

func arrayOf(items Schema) Schema {
	return Schema{"type": "array", "items": items}
}

func object(properties Schema, required ...string) Schema {
	return Schema{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

var sceneSchema = object(Schema{
	"sceneNumber": integer(""),
	"setting":     str("e.g., INT. COFFEE SHOP"),
	"timeOfDay":   str("e.g., DAY, NIGHT"),
	"summary":     str(""),
	"characters":  arrayOf(str("")),
	"locations":   str(""),
	"pages":       str("Page count for the scene, e.g., '1 1/8'"),
}, "sceneNumber", "setting", "timeOfDay", "summary", "characters", "locations", "pages")

var characterSchema = object(Schema{
	"name":        str(""),
	"description": str(""),
	"scenes":      arrayOf(integer("")),
}, "name", "description")

var scheduleDaySchema = object(Schema{
	"day":  integer(""),
	"date": str("A fictional date for the shoot day, e.g., 'Monday, Oct 28th'"),
	"scenes": arrayOf(object(Schema{
		"sceneNumber": integer(""),
		"setting":     str(""),
		"summary":     str(""),
		"pages":       str(""),
	}, "sceneNumber", "setting", "summary", "pages")),
	"notes": str(""),
}, "day", "date", "scenes", "notes")

var shotSchema = object(Schema{
	"shotNumber":  integer(""),
	"shotType":    str("e.g., Wide Shot, Medium Close-Up, POV"),
	"lens":        str("e.g., 24mm, 50mm, 85mm Anamorphic"),
	"description": str(""),
}, "shotNumber", "shotType", "lens", "description")

var productionBibleSchema = object(Schema{
	"camera": arrayOf(object(Schema{
		"recommendation": str(""),
		"reasoning":      str(""),
	}, "recommendation", "reasoning")),
	"art": arrayOf(object(Schema{
		"prop":        str(""),
		"description": str(""),
	}, "prop", "description")),
	"lighting": arrayOf(object(Schema{
		"setup":   str(""),
		"mood":    str(""),
		"details": str(""),
	}, "setup", "mood", "details")),
	"costumes": arrayOf(object(Schema{
		"character":   str(""),
		"costume":     str(""),
		"inspiration": str(""),
	}, "character", "costume", "inspiration")),
}, "camera", "art", "lighting", "costumes")

var continuitySchema = object(Schema{
	"characterContinuity": arrayOf(object(Schema{
		"sceneNumber": integer(""),
		"character":   str(""),
		"issue":       str(""),
	}, "sceneNumber", "character", "issue")),
	"costumeContinuity": arrayOf(object(Schema{
		"character":    str(""),
		"sceneNumbers": arrayOf(integer("")),
		"issue":        str(""),
	}, "character", "sceneNumbers", "issue")),
	"editingContinuity": arrayOf(object(Schema{
		"sceneNumbers": arrayOf(integer("")),
		"issue":        str(""),
		"suggestion":   str(""),
	}, "sceneNumbers", "issue", "suggestion")),
}, "characterContinuity", "costumeContinuity", "editingContinuity")

var registry = map[models.TaskKind]Entry{
	models.TaskParseScript: {
		Name: "script_analysis",
		Schema: object(Schema{
			"title":      str(""),
			"logline":    str(""),
			"scenes":     arrayOf(sceneSchema),
			"characters": arrayOf(characterSchema),
		}, "title", "logline", "scenes", "characters"),
	},
	models.TaskGenerateSchedule: {
		Name:   "shooting_schedule",
		Schema: arrayOf(scheduleDaySchema),
	},
	models.TaskGenerateShotList: {
		Name:   "shot_list",
		Schema: arrayOf(shotSchema),
	},
	models.TaskGenerateSceneProductionGuide: {
		Name:   "scene_production_guide",
		Schema: productionBibleSchema,
	},
	models.TaskGenerateContinuityReport: {
		Name:   "continuity_analysis",
		Schema: continuitySchema,
	},
}

// Lookup возвращает схему для задачи. Для задач без структурированного ответа
// (картинка, вопрос ассистенту) ok == false.
func Lookup(task models.TaskKind) (Entry, bool) {
	e, ok := registry[task]
	return e, ok
}

// MustLookup - как Lookup, но паникует для задач без схемы. Только для кода,
// где задача известна на этапе компиляции.
func MustLookup(task models.TaskKind) Entry {
	e, ok := registry[task]
	if !ok {
		panic(fmt.Sprintf("schemas: no schema registered for task %q", task))
	}
	return e
}

// RawJSON возвращает схему в виде json.RawMessage (для OpenAI response_format и Ollama format).
func (e Entry) RawJSON() (json.RawMessage, error) {
	b, err := json.Marshal(e.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema %s: %w", e.Name, err)
	}
	return b, nil
}
