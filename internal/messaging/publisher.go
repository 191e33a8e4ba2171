package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
)

// EventPublisher публикует события сессий.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event models.SessionEvent) error
}

// rabbitMQPublisher публикует события в durable очередь как persistent сообщения.
type rabbitMQPublisher struct {
	mu        sync.Mutex // публикации идут из горутин раскадровки
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQEventPublisher открывает канал и объявляет очередь событий.
func NewRabbitMQEventPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*rabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("event publisher: не удалось открыть канал: %w", err)
	}
	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("event publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	logger.Info("Artifact events queue declared", zap.String("queue", queueName))
	return &rabbitMQPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("EventPublisher"),
	}, nil
}

func (p *rabbitMQPublisher) PublishSessionEvent(ctx context.Context, event models.SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s сессии %s: %w", event.Type, event.SessionID, err)
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Type:         string(event.Type),
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		p.logger.Error("Failed to publish session event",
			zap.String("sessionID", event.SessionID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return fmt.Errorf("ошибка публикации события %s: %w", event.Type, err)
	}
	p.logger.Debug("Session event published", zap.String("sessionID", event.SessionID), zap.String("type", string(event.Type)))
	return nil
}

// Close закрывает канал.
func (p *rabbitMQPublisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// NoopPublisher отбрасывает события. Используется, когда RABBITMQ_URL не задан.
type NoopPublisher struct{}

func (NoopPublisher) PublishSessionEvent(context.Context, models.SessionEvent) error { return nil }

// Fanout рассылает событие всем получателям. Ошибка одного получателя не мешает остальным.
type Fanout []EventPublisher

func (f Fanout) PublishSessionEvent(ctx context.Context, event models.SessionEvent) error {
	var firstErr error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishSessionEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ EventPublisher = (*rabbitMQPublisher)(nil)
	_ EventPublisher = NoopPublisher{}
	_ EventPublisher = Fanout(nil)
)

// ConnectRabbitMQ подключается к RabbitMQ с несколькими попытками.
func ConnectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 3 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ")
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
