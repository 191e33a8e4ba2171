package session

import (
	"time"

	"cinegenius-server/internal/models"
)

const restoredPendingAnswer = "Sorry, I encountered an error: the answer was lost when the session was restored."

// Snapshot - сериализуемое состояние сессии (ответ GET /api/sessions/:id и запись в Redis).
type Snapshot struct {
	SessionID    string                         `json:"sessionId"`
	Epoch        uint64                         `json:"epoch"`
	Analysis     *models.ScriptAnalysis         `json:"analysis,omitempty"`
	Schedule     []models.ScheduleDay           `json:"schedule,omitempty"`
	Shots        *models.ShotList               `json:"shots,omitempty"`
	Guides       map[int]models.ProductionBible `json:"guides,omitempty"`
	Continuity   *models.ContinuityAnalysis     `json:"continuity,omitempty"`
	Conversation []models.ConversationTurn      `json:"conversation"`
	UpdatedAt    time.Time                      `json:"updatedAt"`
}

// Snapshot возвращает копию состояния сессии.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:    s.ID,
		Epoch:        s.epoch,
		Schedule:     s.schedule,
		Conversation: append([]models.ConversationTurn{}, s.conversation...),
		UpdatedAt:    time.Now().UTC(),
	}
	if s.analysis != nil {
		a := *s.analysis
		snap.Analysis = &a
	}
	if s.shots != nil {
		list := copyShotList(*s.shots)
		snap.Shots = &list
	}
	if len(s.guides) > 0 {
		snap.Guides = make(map[int]models.ProductionBible, len(s.guides))
		for k, v := range s.guides {
			snap.Guides[k] = v
		}
	}
	if s.continuity != nil {
		c := *s.continuity
		snap.Continuity = &c
	}
	return snap
}

// Restore собирает сессию из снимка. Генерации, которые шли в момент снимка, потеряны:
// кадры в загрузке получают маркер ошибки, pending-реплики - сообщение об ошибке.
func Restore(snap Snapshot) *Session {
	s := New(snap.SessionID)
	s.epoch = snap.Epoch
	s.analysis = snap.Analysis
	s.schedule = snap.Schedule
	if snap.Shots != nil {
		list := copyShotList(*snap.Shots)
		for i := range list.Shots {
			if list.Shots[i].IsLoadingImage {
				list.Shots[i].IsLoadingImage = false
				list.Shots[i].ImageURL = models.ImageErrorSentinel
			}
		}
		s.shots = &list
	}
	for k, v := range snap.Guides {
		s.guides[k] = v
	}
	s.continuity = snap.Continuity
	for _, turn := range snap.Conversation {
		if turn.Role == models.RolePending {
			turn = models.ConversationTurn{Role: models.RoleAssistant, Content: restoredPendingAnswer}
		}
		s.conversation = append(s.conversation, turn)
	}
	return s
}
