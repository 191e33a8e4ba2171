package models

// TaskKind определяет тип задачи генерации. Значения совпадают с action в API.
type TaskKind string

const (
	TaskParseScript                  TaskKind = "parseScript"
	TaskGenerateSchedule             TaskKind = "generateSchedule"
	TaskGenerateShotList             TaskKind = "generateShotList"
	TaskGenerateImageForShot         TaskKind = "generateImageForShot"
	TaskGenerateSceneProductionGuide TaskKind = "generateSceneProductionGuide"
	TaskGenerateContinuityReport     TaskKind = "generateContinuityReport"
	TaskAskScriptQuestion            TaskKind = "askScriptQuestion"
)

// AllTaskKinds - все задачи в порядке, в котором они описаны в API.
var AllTaskKinds = []TaskKind{
	TaskParseScript,
	TaskGenerateSchedule,
	TaskGenerateShotList,
	TaskGenerateImageForShot,
	TaskGenerateSceneProductionGuide,
	TaskGenerateContinuityReport,
	TaskAskScriptQuestion,
}

// IsValidTaskKind проверяет, является ли строка известной задачей.
func IsValidTaskKind(k TaskKind) bool {
	for _, known := range AllTaskKinds {
		if known == k {
			return true
		}
	}
	return false
}

// Label - человекочитаемое название задачи для сообщений об ошибках.
func (k TaskKind) Label() string {
	switch k {
	case TaskParseScript:
		return "script analysis"
	case TaskGenerateSchedule:
		return "scheduling"
	case TaskGenerateShotList:
		return "the shot list"
	case TaskGenerateImageForShot:
		return "the shot image"
	case TaskGenerateSceneProductionGuide:
		return "the scene production guide"
	case TaskGenerateContinuityReport:
		return "the continuity analysis"
	case TaskAskScriptQuestion:
		return "the AI assistant"
	default:
		return string(k)
	}
}
