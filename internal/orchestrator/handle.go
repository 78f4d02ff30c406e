package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/shaiso/harvester/internal/domain"
)

// StepHandle — разделяемое состояние одного шага.
//
// Содержит семафор на concurrency_limit разрешений, атомарное состояние
// (Running/Paused/Stopped) и широковещательный сигнал смены состояния.
// Создаётся при каждой загрузке Setting.
type StepHandle struct {
	step    domain.Step
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	state   atomic.Uint32
	running atomic.Bool

	// mu защищает ch. ch закрывается и заменяется при каждой смене состояния.
	mu sync.Mutex
	ch chan struct{}
}

// NewStepHandle создаёт handle для шага.
func NewStepHandle(step domain.Step) *StepHandle {
	limit := int64(step.ConcurrencyLimit)
	if limit < 1 {
		limit = 1
	}

	h := &StepHandle{
		step: step,
		sem:  semaphore.NewWeighted(limit),
		ch:   make(chan struct{}),
	}
	if step.RateLimit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(step.RateLimit), 1)
	}
	return h
}

// Step возвращает описание шага.
func (h *StepHandle) Step() domain.Step {
	return h.step
}

// State возвращает текущее состояние.
func (h *StepHandle) State() domain.StepState {
	return domain.StepState(h.state.Load())
}

// Running возвращает true, пока идёт запуск шага.
func (h *StepHandle) Running() bool {
	return h.running.Load()
}

// SetState записывает состояние и будит всех ожидающих.
func (h *StepHandle) SetState(s domain.StepState) {
	h.state.Store(uint32(s))
	h.broadcast()
}

func (h *StepHandle) changed() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ch
}

func (h *StepHandle) broadcast() {
	h.mu.Lock()
	close(h.ch)
	h.ch = make(chan struct{})
	h.mu.Unlock()
}

// Wait блокируется, пока состояние Paused, и возвращает первое
// состояние, отличное от Paused. Ошибка — только отмена ctx.
func (h *StepHandle) Wait(ctx context.Context) (domain.StepState, error) {
	for {
		// канал берётся до чтения состояния, чтобы не пропустить смену
		ch := h.changed()
		s := h.State()
		if s != domain.StepPaused {
			return s, nil
		}

		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ch:
		}
	}
}

// tryStart помечает шаг как выполняющийся. false — уже выполняется.
func (h *StepHandle) tryStart() bool {
	return h.running.CompareAndSwap(false, true)
}

func (h *StepHandle) finish() {
	h.running.Store(false)
}

// close останавливает запуск, использующий этот handle.
func (h *StepHandle) close() {
	h.SetState(domain.StepStopped)
}
