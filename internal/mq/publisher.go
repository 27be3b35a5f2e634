package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Cronwheel/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	// MessageTypeJobTrigger — срабатывание задачи для исполнителя.
	MessageTypeJobTrigger MessageType = "job.trigger"

	// MessageTypeManualTrigger — запрос на ручной запуск задачи.
	MessageTypeManualTrigger MessageType = "job.manual_trigger"
)

// Message — конверт сообщения.
type Message struct {
	// ID — идентификатор сообщения.
	// Для job.trigger совпадает с ключом идемпотентности срабатывания.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// JobTriggerPayload — payload срабатывания задачи.
type JobTriggerPayload struct {
	JobID          uuid.UUID           `json:"job_id"`
	Cause          domain.TriggerCause `json:"cause"`
	ScheduledAt    time.Time           `json:"scheduled_at"`
	IdempotencyKey string              `json:"idempotency_key"`
	Params         map[string]any      `json:"params,omitempty"`
}

// ManualTriggerPayload — payload запроса на ручной запуск.
type ManualTriggerPayload struct {
	JobID  uuid.UUID      `json:"job_id"`
	Params map[string]any `json:"params,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	publishing, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	if err := p.conn.Publish(ctx, exchange, routingKey, publishing); err != nil {
		return err
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishJobTrigger публикует срабатывание задачи.
// MessageId — ключ идемпотентности, исполнитель отбрасывает дубликаты по нему.
func (p *Publisher) PublishJobTrigger(ctx context.Context, req domain.TriggerRequest) error {
	return p.Publish(ctx, ExchangeTriggers, RoutingKeyFire, newJobTriggerMessage(req))
}

// PublishManualTrigger публикует запрос на ручной запуск.
// Потребитель: ManualListener в scheduler.
func (p *Publisher) PublishManualTrigger(ctx context.Context, jobID uuid.UUID, params map[string]any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeManualTrigger,
		Payload:   ManualTriggerPayload{JobID: jobID, Params: params},
		Timestamp: time.Now().UTC(),
	}
	return p.Publish(ctx, ExchangeTriggers, RoutingKeyManual, msg)
}

// Send реализует trigger.Sender.
func (p *Publisher) Send(ctx context.Context, req domain.TriggerRequest) error {
	return p.PublishJobTrigger(ctx, req)
}

// newJobTriggerMessage строит конверт срабатывания.
func newJobTriggerMessage(req domain.TriggerRequest) *Message {
	key := req.IdempotencyKey()
	return &Message{
		ID:   key,
		Type: MessageTypeJobTrigger,
		Payload: JobTriggerPayload{
			JobID:          req.JobID,
			Cause:          req.Cause,
			ScheduledAt:    req.ScheduledAt.UTC(),
			IdempotencyKey: key,
			Params:         req.Params,
		},
		Timestamp: time.Now().UTC(),
	}
}

// encodeMessage сериализует конверт в AMQP publishing.
func encodeMessage(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}
