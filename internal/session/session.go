package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"cinegenius-server/internal/models"
)

// Session хранит артефакты одного сценария. Каждый слот содержит не больше одного значения,
// повторная запись перезаписывает предыдущую.
//
// Запись результата генерации принимает epoch, захваченный до запуска генерации.
// После Reset (или нового разбора сценария) epoch растет, и запоздавшие результаты отбрасываются.
type Session struct {
	ID string

	mu           sync.Mutex
	epoch        uint64
	analysis     *models.ScriptAnalysis
	schedule     []models.ScheduleDay
	shots        *models.ShotList
	shotsVersion uint64 // растет при каждой замене шот-листа
	guides       map[int]models.ProductionBible
	continuity   *models.ContinuityAnalysis
	conversation []models.ConversationTurn

	guideFlight singleflight.Group
	lastAccess  atomic.Int64
}

// New создает пустую сессию.
func New(id string) *Session {
	s := &Session{
		ID:     id,
		guides: make(map[int]models.ProductionBible),
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastAccess.Store(time.Now().UnixNano())
}

// LastAccess - время последнего обращения к сессии.
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// Epoch возвращает текущее поколение сессии.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Reset очищает все слоты и увеличивает epoch. Генерации в полете не отменяются,
// их результаты будут отброшены.
func (s *Session) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.analysis = nil
	s.conversation = nil
	s.epoch++
	return s.epoch
}

// clearLocked очищает производные слоты. Вызывать под s.mu.
func (s *Session) clearLocked() {
	s.schedule = nil
	s.shots = nil
	s.guides = make(map[int]models.ProductionBible)
	s.continuity = nil
}

// Current возвращает разбор сценария вместе с epoch, к которому он относится.
func (s *Session) Current() (models.ScriptAnalysis, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analysis == nil {
		return models.ScriptAnalysis{}, s.epoch, false
	}
	return *s.analysis, s.epoch, true
}

// Analysis возвращает разбор сценария.
func (s *Session) Analysis() (models.ScriptAnalysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analysis == nil {
		return models.ScriptAnalysis{}, false
	}
	return *s.analysis, true
}

// ApplyAnalysis сохраняет новый разбор. Производные артефакты и диалог предыдущего сценария
// сбрасываются, epoch увеличивается. Возвращает новый epoch и false, если epoch устарел.
func (s *Session) ApplyAnalysis(epoch uint64, analysis models.ScriptAnalysis) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return s.epoch, false
	}
	s.clearLocked()
	s.conversation = nil
	s.analysis = &analysis
	s.epoch++
	return s.epoch, true
}

func (s *Session) Schedule() ([]models.ScheduleDay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return nil, false
	}
	return append([]models.ScheduleDay(nil), s.schedule...), true
}

func (s *Session) ApplySchedule(epoch uint64, days []models.ScheduleDay) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	if days == nil {
		days = []models.ScheduleDay{}
	}
	s.schedule = days
	return true
}

// ShotList возвращает копию текущего шот-листа.
func (s *Session) ShotList() (models.ShotList, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shots == nil {
		return models.ShotList{}, false
	}
	return copyShotList(*s.shots), true
}

// ApplyShotList заменяет шот-лист целиком и возвращает его версию.
// Картинки кадров пишутся только в ту версию, для которой их рисовали.
func (s *Session) ApplyShotList(epoch uint64, list models.ShotList) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return 0, false
	}
	cp := copyShotList(list)
	s.shots = &cp
	s.shotsVersion++
	return s.shotsVersion, true
}

// UpdateShotImage выставляет ссылку на картинку кадру с индексом index и снимает флаг загрузки.
// Номера кадров не обязаны быть уникальными, поэтому кадр адресуется позицией в списке.
// Возвращает false, если epoch устарел, шот-лист заменен или кадр уже разрешен.
func (s *Session) UpdateShotImage(epoch, version uint64, index int, imageURL string) (models.Shot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.shots == nil || version != s.shotsVersion {
		return models.Shot{}, false
	}
	if index < 0 || index >= len(s.shots.Shots) {
		return models.Shot{}, false
	}
	shot := &s.shots.Shots[index]
	if !shot.IsLoadingImage {
		return models.Shot{}, false
	}
	shot.ImageURL = imageURL
	shot.IsLoadingImage = false
	return *shot, true
}

func (s *Session) Guide(sceneNumber int) (models.ProductionBible, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guides[sceneNumber]
	return g, ok
}

func (s *Session) ApplyGuide(epoch uint64, sceneNumber int, guide models.ProductionBible) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.guides[sceneNumber] = guide
	return true
}

// DoGuide выполняет generate не больше одного раза одновременно для сцены в пределах epoch.
// Параллельные вызовы для той же сцены ждут результат первого; shared == true у ожидавших.
// После Reset или нового сценария запрос не присоединяется к генерации по старому разбору.
func (s *Session) DoGuide(epoch uint64, sceneNumber int, generate func() (models.ProductionBible, error)) (guide models.ProductionBible, err error, shared bool) {
	v, err, shared := s.guideFlight.Do(fmt.Sprintf("%d:%d", epoch, sceneNumber), func() (interface{}, error) {
		return generate()
	})
	if err != nil {
		return models.ProductionBible{}, err, shared
	}
	return v.(models.ProductionBible), nil, shared
}

func (s *Session) Continuity() (models.ContinuityAnalysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.continuity == nil {
		return models.ContinuityAnalysis{}, false
	}
	return *s.continuity, true
}

func (s *Session) ApplyContinuity(epoch uint64, report models.ContinuityAnalysis) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	report.Normalize()
	s.continuity = &report
	return true
}

// Conversation возвращает копию диалога.
func (s *Session) Conversation() []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ConversationTurn{}, s.conversation...)
}

// AppendQuestion добавляет реплику пользователя и pending-реплику ассистента.
// Возвращает маркер pending-реплики для ResolvePending.
func (s *Session) AppendQuestion(question string) string {
	ticket := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation,
		models.ConversationTurn{Role: models.RoleUser, Content: question},
		models.ConversationTurn{Role: models.RolePending, PendingID: ticket},
	)
	return ticket
}

// ResolvePending заменяет pending-реплику с маркером ticket ответом ассистента.
// Поиск идет по маркеру, а не по позиции: между вопросом и ответом могли добавиться другие реплики.
func (s *Session) ResolvePending(ticket, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.conversation) - 1; i >= 0; i-- {
		turn := &s.conversation[i]
		if turn.Role == models.RolePending && turn.PendingID == ticket {
			*turn = models.ConversationTurn{Role: models.RoleAssistant, Content: content}
			return true
		}
	}
	return false
}

func copyShotList(list models.ShotList) models.ShotList {
	return models.ShotList{
		SceneNumber: list.SceneNumber,
		Shots:       append([]models.Shot{}, list.Shots...),
	}
}
