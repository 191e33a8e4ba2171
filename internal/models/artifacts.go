package models

// ImageErrorSentinel - значение ImageURL для кадра, картинку которого сгенерировать не удалось.
// Никогда не совпадает с реальной ссылкой (они всегда начинаются с "data:").
const ImageErrorSentinel = "error"

// ScheduleScene - сокращенная ссылка на сцену внутри съемочного дня.
type ScheduleScene struct {
	SceneNumber int    `json:"sceneNumber"`
	Setting     string `json:"setting"`
	Summary     string `json:"summary"`
	Pages       string `json:"pages"`
}

// ScheduleDay - один съемочный день.
type ScheduleDay struct {
	Day    int             `json:"day"`
	Date   string          `json:"date"`
	Scenes []ScheduleScene `json:"scenes"`
	Notes  string          `json:"notes"`
}

// Shot - кадр из шот-листа сцены.
type Shot struct {
	ShotNumber     int    `json:"shotNumber"`
	ShotType       string `json:"shotType"`
	Lens           string `json:"lens"`
	Description    string `json:"description"`
	ImageURL       string `json:"imageUrl,omitempty"`
	IsLoadingImage bool   `json:"isLoadingImage,omitempty"`
}

// ImageFailed сообщает, что для кадра выставлен маркер ошибки.
func (s Shot) ImageFailed() bool {
	return s.ImageURL == ImageErrorSentinel
}

// ShotList - шот-лист, привязанный к своей сцене.
type ShotList struct {
	SceneNumber int    `json:"sceneNumber"`
	Shots       []Shot `json:"shots"`
}

type CameraNote struct {
	Recommendation string `json:"recommendation"`
	Reasoning      string `json:"reasoning"`
}

type ArtNote struct {
	Prop        string `json:"prop"`
	Description string `json:"description"`
}

type LightingNote struct {
	Setup   string `json:"setup"`
	Mood    string `json:"mood"`
	Details string `json:"details"`
}

type CostumeNote struct {
	Character   string `json:"character"`
	Costume     string `json:"costume"`
	Inspiration string `json:"inspiration"`
}

// ProductionBible - постановочный гайд по одной сцене.
type ProductionBible struct {
	Camera   []CameraNote   `json:"camera"`
	Art      []ArtNote      `json:"art"`
	Lighting []LightingNote `json:"lighting"`
	Costumes []CostumeNote  `json:"costumes"`
}

type CharacterContinuityIssue struct {
	SceneNumber int    `json:"sceneNumber"`
	Character   string `json:"character"`
	Issue       string `json:"issue"`
}

type CostumeContinuityIssue struct {
	Character    string `json:"character"`
	SceneNumbers []int  `json:"sceneNumbers"`
	Issue        string `json:"issue"`
}

type EditingContinuityIssue struct {
	SceneNumbers []int  `json:"sceneNumbers"`
	Issue        string `json:"issue"`
	Suggestion   string `json:"suggestion"`
}

// ContinuityAnalysis - отчет о нарушениях непрерывности по всему сценарию.
// Все три списка пустые - валидный результат "проблем не найдено".
type ContinuityAnalysis struct {
	CharacterContinuity []CharacterContinuityIssue `json:"characterContinuity"`
	CostumeContinuity   []CostumeContinuityIssue   `json:"costumeContinuity"`
	EditingContinuity   []EditingContinuityIssue   `json:"editingContinuity"`
}

// IsEmpty - true, если отчет не содержит ни одной проблемы.
func (c ContinuityAnalysis) IsEmpty() bool {
	return len(c.CharacterContinuity) == 0 && len(c.CostumeContinuity) == 0 && len(c.EditingContinuity) == 0
}

// Normalize заменяет nil-срезы пустыми, чтобы в JSON уходил [] а не null.
func (c *ContinuityAnalysis) Normalize() {
	if c.CharacterContinuity == nil {
		c.CharacterContinuity = []CharacterContinuityIssue{}
	}
	if c.CostumeContinuity == nil {
		c.CostumeContinuity = []CostumeContinuityIssue{}
	}
	if c.EditingContinuity == nil {
		c.EditingContinuity = []EditingContinuityIssue{}
	}
}

// TurnRole - роль реплики в диалоге с ассистентом.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RolePending   TurnRole = "pending"
)

// ConversationTurn - реплика диалога. PendingID заполнен только у pending-реплики.
type ConversationTurn struct {
	Role      TurnRole `json:"role"`
	Content   string   `json:"content"`
	PendingID string   `json:"pendingId,omitempty"`
}
