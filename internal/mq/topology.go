package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTriggers Exchange = "cronwheel.triggers"
	ExchangeDLQ      Exchange = "cronwheel.dlq"
)

// Queues — имена очередей.
const (
	QueueTriggersFire   Queue = "triggers.fire"
	QueueTriggersManual Queue = "triggers.manual"
	QueueDLQTriggers    Queue = "dlq.triggers"
)

// Routing keys.
const (
	RoutingKeyFire   RoutingKey = "fire"
	RoutingKeyManual RoutingKey = "manual"
	RoutingKeyDLQ    RoutingKey = "triggers"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полное описание обменников, очередей и привязок.
type topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// defaultTopology возвращает топологию cronwheel.
func defaultTopology() topology {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQ),
	}

	return topology{
		exchanges: []exchangeDecl{
			{ExchangeTriggers, amqp.ExchangeDirect},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			// triggers.fire — срабатывания для исполнителей
			{QueueTriggersFire, dlqArgs},
			// triggers.manual — ручные запуски, потребляет сам scheduler
			{QueueTriggersManual, dlqArgs},
			{QueueDLQTriggers, nil},
		},
		bindings: []bindingDecl{
			{QueueTriggersFire, RoutingKeyFire, ExchangeTriggers},
			{QueueTriggersManual, RoutingKeyManual, ExchangeTriggers},
			{QueueDLQTriggers, RoutingKeyDLQ, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	t := defaultTopology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range t.exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range t.queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range t.bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Cronwheel RabbitMQ Topology:

    cronwheel.triggers (direct)
    ├── triggers.fire [routing: fire]
    │       Consumer: executors
    │       DLQ: dlq.triggers
    └── triggers.manual [routing: manual]
            Consumer: scheduler (manual listener)
            DLQ: dlq.triggers

    cronwheel.dlq (direct)
    └── dlq.triggers [routing: triggers]
            Manual processing
  `
}
