package models

// Language определяет язык, на котором модель должна вернуть результат.
type Language string

const (
	LanguageEnglish  Language = "English"
	LanguageSpanish  Language = "Spanish"
	LanguageFrench   Language = "French"
	LanguageGerman   Language = "German"
	LanguageJapanese Language = "Japanese"
	LanguageChinese  Language = "Chinese"
)

// DefaultLanguage используется, если клиент не передал язык.
const DefaultLanguage = LanguageEnglish

// IsValidLanguage проверяет, поддерживается ли язык.
func IsValidLanguage(l Language) bool {
	switch l {
	case LanguageEnglish,
		LanguageSpanish,
		LanguageFrench,
		LanguageGerman,
		LanguageJapanese,
		LanguageChinese:
		return true
	default:
		return false
	}
}

// OrDefault возвращает язык или English, если язык не задан.
func (l Language) OrDefault() Language {
	if l == "" {
		return DefaultLanguage
	}
	return l
}

// InlineData - бинарное вложение (загруженный файл сценария), base64 как есть.
type InlineData struct {
	Data     string `json:"data" validate:"required,base64"`
	MimeType string `json:"mimeType" validate:"required"`
}

// Scene - одна сцена из разбора сценария.
type Scene struct {
	SceneNumber int      `json:"sceneNumber"`
	Setting     string   `json:"setting"`
	TimeOfDay   string   `json:"timeOfDay"`
	Summary     string   `json:"summary"`
	Characters  []string `json:"characters"`
	Locations   string   `json:"locations"`
	Pages       string   `json:"pages"`
}

// Character - персонаж сценария. Name используется как естественный ключ.
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Scenes      []int  `json:"scenes,omitempty"`
}

// ScriptAnalysis - корневой артефакт, результат разбора сценария.
type ScriptAnalysis struct {
	Title      string      `json:"title"`
	Logline    string      `json:"logline"`
	Scenes     []Scene     `json:"scenes"`
	Characters []Character `json:"characters"`
}

// FindScene ищет сцену по номеру.
func (a *ScriptAnalysis) FindScene(sceneNumber int) (Scene, bool) {
	if a == nil {
		return Scene{}, false
	}
	for _, s := range a.Scenes {
		if s.SceneNumber == sceneNumber {
			return s, true
		}
	}
	return Scene{}, false
}
