package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
)

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cinegenius_active_sessions",
	Help: "Number of sessions held in memory.",
})

const storeTimeout = 3 * time.Second

// Manager хранит сессии в памяти и дублирует их снимки в SnapshotStore.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    SnapshotStore
	ttl      time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewManager создает менеджер. store == nil - снимки не сохраняются.
func NewManager(store SnapshotStore, ttl time.Duration, logger *zap.Logger) *Manager {
	if store == nil {
		store = NoopStore{}
	}
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		ttl:      ttl,
		logger:   logger.Named("SessionManager"),
		stop:     make(chan struct{}),
	}
}

// Create создает новую пустую сессию.
func (m *Manager) Create(ctx context.Context) *Session {
	s := New(uuid.NewString())
	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	activeSessions.Set(float64(n))

	m.Persist(ctx, s)
	m.logger.Info("Session created", zap.String("sessionID", s.ID))
	return s
}

// Get возвращает сессию из памяти или восстанавливает ее из снимка.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
		return s, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	snap, err := m.store.Load(loadCtx, id)
	if err != nil {
		if !errors.Is(err, models.ErrSessionNotFound) {
			m.logger.Warn("Failed to load session snapshot", zap.String("sessionID", id), zap.Error(err))
		}
		return nil, models.ErrSessionNotFound
	}

	restored := Restore(snap)
	m.mu.Lock()
	// Другой запрос мог восстановить ту же сессию раньше
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		existing.touch()
		return existing, nil
	}
	m.sessions[id] = restored
	n := len(m.sessions)
	m.mu.Unlock()
	activeSessions.Set(float64(n))

	m.logger.Info("Session restored from snapshot", zap.String("sessionID", id), zap.Uint64("epoch", snap.Epoch))
	return restored, nil
}

// Delete удаляет сессию и ее снимок.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	activeSessions.Set(float64(n))

	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := m.store.Delete(delCtx, id); err != nil {
		m.logger.Warn("Failed to delete session snapshot", zap.String("sessionID", id), zap.Error(err))
	}
	if !ok {
		return models.ErrSessionNotFound
	}
	m.logger.Info("Session deleted", zap.String("sessionID", id))
	return nil
}

// Reset очищает сессию и возвращает новый epoch.
func (m *Manager) Reset(ctx context.Context, id string) (uint64, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	epoch := s.Reset()
	m.Persist(ctx, s)
	m.logger.Info("Session reset", zap.String("sessionID", id), zap.Uint64("epoch", epoch))
	return epoch, nil
}

// Persist сохраняет снимок сессии. Ошибка хранилища только логируется.
func (m *Manager) Persist(ctx context.Context, s *Session) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := m.store.Save(saveCtx, s.Snapshot(), m.ttl); err != nil {
		m.logger.Warn("Failed to persist session snapshot", zap.String("sessionID", s.ID), zap.Error(err))
	}
}

// Len - число сессий в памяти.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor запускает фоновое удаление сессий, не использовавшихся дольше ttl.
// Снимки в хранилище не трогаются, они истекают по своему TTL.
func (m *Manager) StartJanitor(interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case now := <-ticker.C:
				m.evictIdle(now)
			}
		}
	}()
}

func (m *Manager) evictIdle(now time.Time) int {
	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastAccess()) > m.ttl {
			delete(m.sessions, id)
			evicted++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	activeSessions.Set(float64(n))
	if evicted > 0 {
		m.logger.Info("Idle sessions evicted", zap.Int("evicted", evicted), zap.Int("remaining", n))
	}
	return evicted
}

// Close останавливает janitor.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}
