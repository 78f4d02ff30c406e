package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shaiso/harvester/internal/domain"
)

// Notifier получает уведомления о ходе выполнения шагов.
//
// Notify вызывается конкурентно из задач шага и не должен блокироваться
// надолго.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// NotifierFunc — адаптер функции к Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification)

// Notify вызывает f.
func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) {
	f(ctx, n)
}

// LogNotifier пишет уведомления в лог.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify реализует Notifier.
func (l LogNotifier) Notify(_ context.Context, n domain.Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"step", n.Step, "run_id", n.RunID, "message", n.Message}
	switch n.Name {
	case domain.NotifyError:
		logger.Warn("step notification", append(attrs, "name", n.Name)...)
	case domain.NotifyProgress:
		logger.Debug("step notification", append(attrs, "name", n.Name)...)
	default:
		logger.Info("step notification", append(attrs, "name", n.Name, "status", n.Status)...)
	}
}

// MultiNotifier рассылает уведомление всем получателям по очереди.
type MultiNotifier []Notifier

// Notify реализует Notifier.
func (m MultiNotifier) Notify(ctx context.Context, n domain.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// Broadcaster раздаёт уведомления подписчикам (websocket-клиентам).
//
// Медленный подписчик не тормозит шаг: если его буфер полон,
// уведомление для него отбрасывается.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.Notification]struct{}
	buffer int
	logger *slog.Logger
}

// NewBroadcaster создаёт Broadcaster с буфером buffer на подписчика.
func NewBroadcaster(buffer int, logger *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[chan domain.Notification]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe регистрирует подписчика. Возвращённая функция отписывает
// его и закрывает канал; повторный вызов безопасен.
func (b *Broadcaster) Subscribe() (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers возвращает число подписчиков.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Notify реализует Notifier.
func (b *Broadcaster) Notify(_ context.Context, n domain.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.logger.Debug("subscriber buffer full, notification dropped", "step", n.Step, "name", n.Name)
		}
	}
}
