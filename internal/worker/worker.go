package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/mq"
	"github.com/shaiso/harvester/internal/orchestrator"
)

const defaultPrefetch = 10

// Engine — то, чем управляют команды. Реализуется orchestrator.Engine.
type Engine interface {
	Load(s domain.Setting) error
	RunStep(ctx context.Context, name string) error
	UpdateState(name string, state domain.StepState) error
	State(name string) (domain.StepState, bool, error)
}

// Worker потребляет команды и исполняет их через Engine.
type Worker struct {
	engine Engine
	conn   *mq.Connection

	consumer *mq.Consumer
	prefetch int

	// runCtx живёт до Stop; запуски шагов не привязаны к сообщению.
	runCtx    context.Context
	runCancel context.CancelFunc
	runs      sync.WaitGroup

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Engine — исполнитель команд.
	Engine Engine

	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// Prefetch — сообщений в работе одновременно (default: 10).
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	return &Worker{
		engine:    cfg.Engine,
		conn:      cfg.Conn,
		prefetch:  prefetch,
		runCtx:    runCtx,
		runCancel: runCancel,
		logger:    logger.With("component", "worker"),
	}
}

// Start запускает потребление очереди команд.
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.consumer = mq.NewConsumer(w.conn, mq.ConsumerConfig{
		Queue:    mq.QueueCommands,
		Handler:  w.handle,
		Prefetch: w.prefetch,
	}, w.logger)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("command consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started", "queue", mq.QueueCommands, "prefetch", w.prefetch)
	return nil
}

// Stop останавливает потребление и дожидается запущенных шагов.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	if w.stopped {
		w.stoppedMu.Unlock()
		return
	}
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()

	w.runCancel()
	w.runs.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handle исполняет одну команду.
func (w *Worker) handle(ctx context.Context, msg *mq.Message) error {
	switch msg.Type {
	case mq.MessageTypeStepRun:
		payload, err := mq.ParsePayload[mq.StepRunPayload](msg)
		if err != nil {
			return err
		}
		return w.runStep(payload.Step)

	case mq.MessageTypeStepState:
		payload, err := mq.ParsePayload[mq.StepStatePayload](msg)
		if err != nil {
			return err
		}
		if err := w.engine.UpdateState(payload.Step, payload.State); err != nil {
			return permanentIfUser(err)
		}
		return nil

	case mq.MessageTypeSettingLoad:
		payload, err := mq.ParsePayload[mq.SettingLoadPayload](msg)
		if err != nil {
			return err
		}
		if err := w.engine.Load(payload.Setting); err != nil {
			return mq.Permanent(fmt.Errorf("load setting: %w", err))
		}
		return nil

	default:
		return mq.Permanent(fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Type))
	}
}

// runStep запускает шаг в фоне. Сообщение подтверждается сразу:
// ход выполнения виден по уведомлениям шага.
func (w *Worker) runStep(name string) error {
	_, running, err := w.engine.State(name)
	if err != nil {
		return permanentIfUser(err)
	}
	if running {
		w.logger.Info("step already running, command skipped", "step", name)
		return nil
	}
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	w.runs.Add(1)
	go func() {
		defer w.runs.Done()
		err := w.engine.RunStep(w.runCtx, name)
		switch {
		case err == nil:
		case errors.Is(err, orchestrator.ErrStepBusy):
			w.logger.Info("step already running, command skipped", "step", name)
		default:
			w.logger.Error("step run failed", "step", name, "error", err)
		}
	}()
	return nil
}

// permanentIfUser помечает ошибки, которые повтор не исправит.
func permanentIfUser(err error) error {
	if errors.Is(err, orchestrator.ErrStepNotFound) || errors.Is(err, orchestrator.ErrInvalidState) {
		return mq.Permanent(err)
	}
	return err
}
