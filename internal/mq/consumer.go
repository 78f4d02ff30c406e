package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPermanent помечает ошибку, которую повтор не исправит
// (неизвестный шаг, битый payload). Такое сообщение уходит в DLQ.
var ErrPermanent = errors.New("permanent failure")

// errDeliveriesClosed — брокер закрыл канал доставки.
var errDeliveriesClosed = errors.New("deliveries channel closed")

// Permanent оборачивает err в ErrPermanent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler обрабатывает одну команду.
//
// nil — ack. Ошибка, обёрнутая Permanent, — nack в DLQ.
// Любая другая ошибка возвращает команду в очередь один раз.
type Handler func(ctx context.Context, msg *Message) error

// Disposition — что сделать с доставкой после обработки.
type Disposition int

const (
	// DispositionAck — подтвердить.
	DispositionAck Disposition = iota

	// DispositionRequeue — вернуть в очередь.
	DispositionRequeue

	// DispositionDeadLetter — отклонить без возврата (уходит в DLQ).
	DispositionDeadLetter
)

// Decide выбирает судьбу доставки по результату обработчика.
// Повторная доставка после временной ошибки уходит в DLQ.
func Decide(err error, redelivered bool) Disposition {
	switch {
	case err == nil:
		return DispositionAck
	case errors.Is(err, ErrPermanent), redelivered:
		return DispositionDeadLetter
	default:
		return DispositionRequeue
	}
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — очередь команд.
	Queue Queue

	// Handler — обработчик команд.
	Handler Handler

	// Prefetch — неподтверждённых доставок одновременно (default: 1).
	Prefetch int
}

// Consumer читает команды из очереди и переподписывается после
// восстановления соединения.
type Consumer struct {
	conn   *Connection
	cfg    ConsumerConfig
	logger *slog.Logger
}

// NewConsumer создаёт Consumer. Потребление начинается в Run.
func NewConsumer(conn *Connection, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With("queue", string(cfg.Queue)),
	}
}

// Run потребляет очередь до отмены ctx. Возвращает ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	for {
		// ready берётся до подписки, чтобы не пропустить переподключение
		ready := c.conn.Ready()

		deliveries, err := c.subscribe()
		if err == nil {
			c.logger.Info("consuming commands")
			err = c.drain(ctx, deliveries)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("command consumer interrupted, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		}
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(context.Background(), func(ch *amqp.Channel) error {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		d, err := ch.Consume(string(c.cfg.Queue), "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
		}
		deliveries = d
		return nil
	})
	return deliveries, err
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var msg Message
	err := json.Unmarshal(d.Body, &msg)
	if err != nil {
		err = Permanent(fmt.Errorf("decode command: %w", err))
	} else {
		c.logger.Debug("command received", "message_id", msg.ID, "type", msg.Type)
		err = c.cfg.Handler(ctx, &msg)
	}

	switch Decide(err, d.Redelivered) {
	case DispositionAck:
		d.Ack(false)
	case DispositionRequeue:
		c.logger.Warn("command failed, requeued", "message_id", msg.ID, "type", msg.Type, "error", err)
		d.Nack(false, true)
	case DispositionDeadLetter:
		c.logger.Error("command rejected", "message_id", msg.ID, "type", msg.Type, "error", err)
		d.Nack(false, false)
	}
}

// ParsePayload декодирует payload команды в T.
// Ошибка разбора постоянная: сообщение не станет корректным при повторе.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// после json.Unmarshal конверта Payload — map[string]any
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, Permanent(fmt.Errorf("marshal payload: %w", err))
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, Permanent(fmt.Errorf("unmarshal %s payload: %w", msg.Type, err))
	}
	return result, nil
}
