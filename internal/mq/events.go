package mq

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/harvester/internal/domain"
)

// eventPublisher — то, что нужно EventNotifier от Publisher.
type eventPublisher interface {
	PublishEvent(ctx context.Context, n domain.Notification) error
}

// EventNotifier публикует уведомления шагов в harvester.events.
//
// Реализует orchestrator.Notifier. Ошибки публикации только логируются:
// недоступный брокер не должен останавливать шаг.
type EventNotifier struct {
	pub     eventPublisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewEventNotifier создаёт EventNotifier.
func NewEventNotifier(pub *Publisher, logger *slog.Logger) *EventNotifier {
	return newEventNotifier(pub, logger)
}

func newEventNotifier(pub eventPublisher, logger *slog.Logger) *EventNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventNotifier{pub: pub, timeout: 5 * time.Second, logger: logger}
}

// Notify публикует уведомление.
func (e *EventNotifier) Notify(ctx context.Context, n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if err := e.pub.PublishEvent(ctx, n); err != nil {
		e.logger.Warn("failed to publish step event",
			"step", n.Step,
			"name", n.Name,
			"error", err,
		)
	}
}
