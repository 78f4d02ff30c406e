package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/engine"
	"github.com/shaiso/harvester/internal/jobs"
	"github.com/shaiso/harvester/internal/telemetry"
)

// Recorder сохраняет историю запусков шагов.
// Реализуется repo.StepRunRepo.
type Recorder interface {
	Create(ctx context.Context, run *domain.StepRun) error
	Finish(ctx context.Context, run *domain.StepRun) error
}

// Engine — командная поверхность: загрузка Setting, запуск шагов,
// управление их состоянием.
//
// Несколько шагов могут выполняться одновременно, каждый со своим
// семафором и состоянием. Повторный запуск уже выполняющегося шага
// отклоняется с ErrStepBusy.
type Engine struct {
	mu      sync.RWMutex
	setting *domain.Setting
	handles map[string]*StepHandle

	client   *resty.Client
	registry *jobs.Registry
	notifier Notifier
	recorder Recorder
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// Config — конфигурация Engine.
type Config struct {
	// Client — общий HTTP-клиент для HttpJob (nil — клиент по умолчанию).
	Client *resty.Client

	// Registry — виды job (nil — jobs.DefaultRegistry()).
	Registry *jobs.Registry

	// Notifier — получатель уведомлений (nil — LogNotifier).
	Notifier Notifier

	// Recorder — история запусков (nil — не сохраняется).
	Recorder Recorder

	// Metrics — Prometheus метрики (nil — не собираются).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт Engine без загруженного Setting.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		client = jobs.NewClient(jobs.ClientConfig{})
	}

	registry := cfg.Registry
	if registry == nil {
		registry = jobs.DefaultRegistry()
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	return &Engine{
		handles:  make(map[string]*StepHandle),
		client:   client,
		registry: registry,
		notifier: notifier,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Load заменяет env, header и таблицу шагов и пересоздаёт все StepHandle.
//
// Выполняющиеся запуски старых шагов получают Stopped: они не
// запускают новых задач и дожидаются уже запущенных.
func (e *Engine) Load(s domain.Setting) error {
	if err := engine.Validate(&s); err != nil {
		return err
	}
	for name, step := range s.Steps {
		if !e.registry.Has(step.Job.Kind) {
			return engine.NewValidationError(name, "job",
				fmt.Sprintf("job kind %q is not registered (have %v)", step.Job.Kind, e.registry.Kinds()),
				jobs.ErrUnknownKind)
		}
	}

	handles := make(map[string]*StepHandle, len(s.Steps))
	for name, step := range s.Steps {
		handles[name] = NewStepHandle(step)
	}

	e.mu.Lock()
	old := e.handles
	e.setting = &s
	e.handles = handles
	e.mu.Unlock()

	for _, h := range old {
		h.close()
	}

	e.logger.Info("setting loaded", "steps", len(handles))
	return nil
}

// Setting возвращает текущий Setting.
func (e *Engine) Setting() (domain.Setting, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.setting == nil {
		return domain.Setting{}, ErrNoSetting
	}
	return *e.setting, nil
}

// Steps возвращает загруженные шаги, отсортированные по имени.
func (e *Engine) Steps() []domain.Step {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := lo.Keys(e.handles)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) domain.Step {
		return e.handles[name].Step()
	})
}

// Step возвращает шаг по имени.
func (e *Engine) Step(name string) (domain.Step, error) {
	h, err := e.handle(name)
	if err != nil {
		return domain.Step{}, err
	}
	return h.Step(), nil
}

// State возвращает состояние шага и признак выполняющегося запуска.
func (e *Engine) State(name string) (domain.StepState, bool, error) {
	h, err := e.handle(name)
	if err != nil {
		return 0, false, err
	}
	return h.State(), h.Running(), nil
}

// UpdateState записывает состояние шага и будит контроллер,
// если он ждёт на паузе. Возвращается сразу.
func (e *Engine) UpdateState(name string, state domain.StepState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidState, state)
	}
	h, err := e.handle(name)
	if err != nil {
		return err
	}

	h.SetState(state)
	e.logger.Info("step state updated", "step", name, "state", state)
	return nil
}

func (e *Engine) handle(name string) (*StepHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h, ok := e.handles[name]
	if !ok {
		return nil, ErrStepNotFound
	}
	return h, nil
}

// current сообщает, что h всё ещё handle шага name.
func (e *Engine) current(name string, h *StepHandle) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handles[name] == h
}

// RunStep выполняет шаг до конца.
//
// Ошибки подготовки (поиск шага, PreProcess) возвращаются до обработки
// первого кортежа. Ошибка рендеринга задачи прерывает весь запуск.
// Ошибки отдельных задач только уведомляются и на запуск не влияют.
//
// Отмена ctx действует как Stopped: новые задачи не запускаются,
// запущенные дорабатывают до конца.
func (e *Engine) RunStep(ctx context.Context, name string) error {
	e.mu.RLock()
	h, ok := e.handles[name]
	var env, header map[string]string
	if ok {
		env = maps.Clone(e.setting.Env)
		header = maps.Clone(e.setting.Header)
	}
	e.mu.RUnlock()

	if !ok {
		return ErrStepNotFound
	}
	if !h.tryStart() {
		return fmt.Errorf("%w: %s", ErrStepBusy, name)
	}
	defer h.finish()

	step := h.Step()
	run := domain.NewStepRun(name)
	logger := telemetry.WithRunID(telemetry.WithStep(e.logger, name), run.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	e.record(ctx, run, false)

	job, err := e.registry.New(step.Job)
	if err == nil {
		err = job.PreProcess()
	}
	if err != nil {
		err = fmt.Errorf("prepare step %s: %w", name, err)
		logger.Error("step setup failed", "error", err)
		e.notify(ctx, domain.ErrorNotification(name, run.ID, err))
		run.MarkFailed(err.Error())
		e.record(ctx, run, true)
		return err
	}

	h.SetState(domain.StepRunning)
	if !e.current(name, h) {
		// Load заменил шаг во время подготовки
		h.SetState(domain.StepStopped)
		logger.Info("step replaced before start")
		run.MarkStopped()
		e.notify(ctx, domain.EndNotification(name, run.ID))
		e.record(ctx, run, true)
		return nil
	}
	logger.Info("step started", "job", step.Job.Kind, "concurrency_limit", step.ConcurrencyLimit)
	e.notify(ctx, domain.StartNotification(name, run.ID))

	var (
		taskEnv  = jobs.NewEnv(e.client, header)
		taskCtx  = context.WithoutCancel(ctx)
		wg       sync.WaitGroup
		failed   atomic.Int64
		stopped  bool
		fatalErr error
	)

	it := engine.NewIterator(engine.DefaultGenerators(step), domain.NewContext(env))
	defer it.Close()

	for {
		tuple, ok := it.Next()
		if !ok {
			break
		}

		if err := h.sem.Acquire(ctx, 1); err != nil {
			stopped = true
			break
		}

		state, err := h.Wait(ctx)
		if err != nil || state == domain.StepStopped {
			h.sem.Release(1)
			stopped = true
			break
		}

		task, err := job.MakeTask(tuple.Context, taskEnv)
		if err != nil {
			h.sem.Release(1)
			fatalErr = fmt.Errorf("make task: %w", err)
			break
		}

		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				h.sem.Release(1)
				stopped = true
				break
			}
		}

		run.Dispatched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer h.sem.Release(1)
			if !e.execute(taskCtx, name, run.ID, task) {
				failed.Add(1)
			}
		}()
	}

	wg.Wait()
	run.Failed = failed.Load()

	switch {
	case fatalErr != nil:
		logger.Error("step aborted", "error", fatalErr)
		e.notify(ctx, domain.ErrorNotification(name, run.ID, fatalErr))
		run.MarkFailed(fatalErr.Error())
	case stopped:
		run.MarkStopped()
	default:
		run.MarkSucceeded()
	}

	e.notify(ctx, domain.EndNotification(name, run.ID))
	e.record(ctx, run, true)

	logger.Info("step finished",
		"status", run.Status,
		"dispatched", run.Dispatched,
		"failed", run.Failed,
		"duration", run.Duration(),
	)
	return fatalErr
}

// execute выполняет одну задачу. Возвращает false при ошибке.
func (e *Engine) execute(ctx context.Context, step string, runID uuid.UUID, task jobs.Task) bool {
	kind := string(task.Kind())
	if e.metrics != nil {
		e.metrics.InFlight.WithLabelValues(step).Inc()
		defer e.metrics.InFlight.WithLabelValues(step).Dec()
	}

	start := time.Now()
	err := task.Run(ctx)
	elapsed := time.Since(start)

	result := "ok"
	if err != nil {
		result = "error"
		telemetry.FromContext(ctx).Error("task failed", "task", task.Describe(), "error", err)
		e.notify(ctx, domain.ErrorNotification(step, runID, err))
	}
	e.notify(ctx, domain.ProgressNotification(step, runID, task.Describe()))

	if e.metrics != nil {
		e.metrics.Tasks.WithLabelValues(step, kind, result).Inc()
		e.metrics.TaskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
	return err == nil
}

func (e *Engine) notify(ctx context.Context, n domain.Notification) {
	e.notifier.Notify(ctx, n)
}

// record сохраняет запуск. Ошибки истории только логируются.
func (e *Engine) record(ctx context.Context, run *domain.StepRun, finished bool) {
	if finished && e.metrics != nil {
		e.metrics.StepRuns.WithLabelValues(run.Step, string(run.Status)).Inc()
	}
	if e.recorder == nil {
		return
	}

	// история пишется и после отмены ctx
	ctx = context.WithoutCancel(ctx)

	var err error
	if finished {
		err = e.recorder.Finish(ctx, run)
	} else {
		err = e.recorder.Create(ctx, run)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		telemetry.FromContext(ctx).Warn("failed to record step run", "error", err)
	}
}
