package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешенное для чтения следующего pong сообщения от клиента.
	pongWait = 60 * time.Second
	// Отправлять пинги клиенту с этим периодом. Должно быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Клиент ничего не присылает, кроме control frames.
	maxMessageSize = 512
	sendBuffer     = 64
)

// subscriber - одно websocket соединение, подписанное на события сессии.
type subscriber struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// EventHub рассылает события сессий подписанным websocket клиентам.
// Реализует messaging.EventPublisher и подключается в Fanout рядом с RabbitMQ.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	logger      *zap.Logger
}

// NewEventHub создает пустой хаб.
func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		logger:      logger.Named("EventHub"),
	}
}

// PublishSessionEvent отправляет событие всем подписчикам сессии. Медленный клиент пропускает событие.
func (h *EventHub) PublishSessionEvent(_ context.Context, event models.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers[event.SessionID] {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("Subscriber queue is full, event dropped",
				zap.String("sessionID", event.SessionID),
				zap.String("type", string(event.Type)))
		}
	}
	return nil
}

// Subscribers возвращает число подписчиков сессии.
func (h *EventHub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}

func (h *EventHub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[sub.sessionID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.subscribers[sub.sessionID] = subs
	}
	subs[sub] = struct{}{}
	h.logger.Debug("Subscriber registered", zap.String("sessionID", sub.sessionID), zap.Int("subscribers", len(subs)))
}

func (h *EventHub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.subscribers, sub.sessionID)
	}
}

// Close отключает всех подписчиков.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, subs := range h.subscribers {
		for sub := range subs {
			close(sub.send)
		}
		delete(h.subscribers, id)
	}
}

// sessionEvents поднимает websocket со стримом SessionEvent для сессии.
func (h *Handler) sessionEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.workflow.Sessions().Get(c.Request.Context(), id); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		h.logger.Warn("Failed to upgrade connection", zap.String("sessionID", id), zap.Error(err))
		return
	}
	log := h.logger.With(zap.String("sessionID", id))
	log.Info("WebSocket connection established")

	sub := &subscriber{sessionID: id, conn: conn, send: make(chan []byte, sendBuffer)}
	h.hub.register(sub)
	go sub.writePump(log)
	sub.readPump(h.hub, log)
}

// readPump читает control frames до закрытия соединения.
func (s *subscriber) readPump(hub *EventHub, log *zap.Logger) {
	defer func() {
		hub.unregister(s)
		_ = s.conn.Close()
		log.Info("WebSocket connection closed")
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		log.Debug("Unexpected message from client ignored")
	}
}

// writePump отправляет события из send, одно событие на сообщение.
func (s *subscriber) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = s.conn.Close()
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("Failed to write event", zap.Error(err))
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("Failed to send ping", zap.Error(err))
				_ = s.conn.Close()
				return
			}
		}
	}
}
