package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/orchestrator"
)

// Engine — то, что нужно планировщику. Реализуется orchestrator.Engine.
type Engine interface {
	Steps() []domain.Step
	State(name string) (domain.StepState, bool, error)
	RunStep(ctx context.Context, name string) error
}

// entry — расписание одного шага.
type entry struct {
	expr string
	next time.Time
}

// Scheduler — планировщик шагов с полем schedule.
type Scheduler struct {
	engine Engine
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	due map[string]entry

	runs sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	Engine Engine
	Logger *slog.Logger

	// Now — источник времени (nil — time.Now).
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		engine: cfg.Engine,
		logger: logger.With("component", "scheduler"),
		now:    now,
		due:    make(map[string]entry),
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Для новых или изменённых расписаний вычисляет next_due
// 2. Для шагов с наступившим сроком сдвигает next_due и запускает шаг
// 3. Забывает шаги, исчезнувшие из Setting
//
// Возвращает число запущенных шагов. Ошибка расписания одного шага
// не мешает остальным.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	started := 0

	for _, step := range s.engine.Steps() {
		if step.Schedule == "" {
			continue
		}
		seen[step.Name] = true

		e, ok := s.due[step.Name]
		if !ok || e.expr != step.Schedule {
			next, err := NextDue(step.Schedule, now)
			if err != nil {
				s.logger.Error("invalid schedule", "step", step.Name, "error", err)
				continue
			}
			s.due[step.Name] = entry{expr: step.Schedule, next: next}
			s.logger.Debug("step scheduled", "step", step.Name, "next_due", next)
			continue
		}

		if now.Before(e.next) {
			continue
		}

		next, err := NextDue(step.Schedule, now)
		if err != nil {
			s.logger.Error("invalid schedule", "step", step.Name, "error", err)
			continue
		}
		s.due[step.Name] = entry{expr: step.Schedule, next: next}

		if s.trigger(ctx, step.Name) {
			started++
		}
	}

	for name := range s.due {
		if !seen[name] {
			delete(s.due, name)
		}
	}

	if started > 0 {
		s.logger.Info("scheduler tick completed", "started", started)
	}
	return started
}

// trigger запускает шаг в фоне. false — шаг занят или не найден.
func (s *Scheduler) trigger(ctx context.Context, name string) bool {
	_, running, err := s.engine.State(name)
	if err != nil {
		s.logger.Warn("scheduled step not found", "step", name, "error", err)
		return false
	}
	if running {
		s.logger.Info("step still running, trigger skipped", "step", name)
		return false
	}

	s.logger.Info("starting scheduled step", "step", name)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		err := s.engine.RunStep(ctx, name)
		switch {
		case err == nil:
		case errors.Is(err, orchestrator.ErrStepBusy):
			s.logger.Info("step still running, trigger skipped", "step", name)
		default:
			s.logger.Error("scheduled step failed", "step", name, "error", err)
		}
	}()
	return true
}

// NextDue возвращает следующее срабатывание шага, если оно известно.
func (s *Scheduler) NextDue(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.due[name]
	return e.next, ok
}

// Run вызывает Tick каждые interval до отмены ctx, затем дожидается
// запущенных шагов.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", interval)

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.runs.Wait()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Wait дожидается запущенных планировщиком шагов.
func (s *Scheduler) Wait() {
	s.runs.Wait()
}
