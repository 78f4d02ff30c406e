package mq

import (
	"context"
	"fmt"
	"strings"

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
	ExchangeCommands Exchange = "harvester.commands"
	ExchangeEvents   Exchange = "harvester.events"
	ExchangeDLQ      Exchange = "harvester.dlq"
)

// Queues — имена очередей.
const (
	QueueCommands    Queue = "harvester.commands"
	QueueDLQCommands Queue = "harvester.dlq.commands"
)

// Routing keys.
const (
	RoutingKeyCommand     RoutingKey = "command"
	RoutingKeyDLQCommands RoutingKey = "commands"
)

// EventRoutingKey возвращает ключ события шага: step.<шаг>.<уведомление>.
// Точки в имени шага заменяются на "_", чтобы не ломать topic-шаблоны.
func EventRoutingKey(step, notification string) RoutingKey {
	return RoutingKey("step." + strings.ReplaceAll(step, ".", "_") + "." + notification)
}

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue    Queue
	key      RoutingKey
	exchange Exchange
}

// Topology — объявления брокера, которые нужны процессу.
//
// Очередь событий не объявляется: подписчики привязывают свои очереди
// к ExchangeEvents сами.
type Topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// DefaultTopology — команды с DLQ и topic-обменник событий.
func DefaultTopology() Topology {
	return Topology{
		exchanges: []exchangeDecl{
			{ExchangeCommands, amqp.ExchangeDirect},
			{ExchangeEvents, amqp.ExchangeTopic},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			// отклонённые команды уходят в DLQ
			{QueueCommands, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQCommands),
			}},
			{QueueDLQCommands, nil},
		},
		bindings: []bindingDecl{
			{QueueCommands, RoutingKeyCommand, ExchangeCommands},
			{QueueDLQCommands, RoutingKeyDLQCommands, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет DefaultTopology. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	t := DefaultTopology()
	return conn.WithChannel(ctx, t.apply)
}

func (t Topology) apply(ch *amqp.Channel) error {
	// все объекты durable, без auto-delete и аргументов no-wait
	for _, ex := range t.exchanges {
		if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	for _, q := range t.queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	for _, b := range t.bindings {
		if err := ch.QueueBind(string(b.queue), string(b.key), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// String описывает топологию для логов.
func (t Topology) String() string {
	var sb strings.Builder
	for _, ex := range t.exchanges {
		fmt.Fprintf(&sb, "%s (%s)\n", ex.name, ex.kind)
		for _, b := range t.bindings {
			if b.exchange == ex.name {
				fmt.Fprintf(&sb, "  -> %s [routing: %s]\n", b.queue, b.key)
			}
		}
		if ex.name == ExchangeEvents {
			sb.WriteString("  -> step.<step>.<status|progress|error>\n")
		}
	}
	return sb.String()
}
