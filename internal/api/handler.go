package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/orchestrator"
	"github.com/shaiso/harvester/internal/repo"
)

// Engine — командная поверхность, которую обслуживает API.
// Реализуется orchestrator.Engine.
type Engine interface {
	Load(s domain.Setting) error
	Setting() (domain.Setting, error)
	Steps() []domain.Step
	Step(name string) (domain.Step, error)
	State(name string) (domain.StepState, bool, error)
	UpdateState(name string, state domain.StepState) error
	RunStep(ctx context.Context, name string) error
}

// RunStore — история запусков. Реализуется repo.StepRunRepo.
type RunStore interface {
	List(ctx context.Context, filter repo.StepRunFilter) ([]domain.StepRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StepRun, error)
}

// SettingStore — версии Setting. Реализуется repo.SettingRepo.
type SettingStore interface {
	Save(ctx context.Context, s *domain.Setting) (int64, error)
}

// Schedule — следующие срабатывания шагов. Реализуется scheduler.Scheduler.
type Schedule interface {
	NextDue(name string) (time.Time, bool)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	engine   Engine
	runs     RunStore
	settings SettingStore
	events   *orchestrator.Broadcaster
	schedule Schedule
	logger   *slog.Logger

	// runCtx — контекст запусков, начатых через API. Живёт дольше
	// запроса, отменяется при остановке сервера.
	runCtx  context.Context
	running sync.WaitGroup
}

// Config — конфигурация для создания Handler.
type Config struct {
	Engine Engine

	// Runs — история запусков (nil — /runs отвечает 503).
	Runs RunStore

	// Settings — хранилище версий Setting (nil — не сохраняется).
	Settings SettingStore

	// Events — источник уведомлений для /events (nil — 503).
	Events *orchestrator.Broadcaster

	// Schedule — источник next_run для шагов (nil — не показывается).
	Schedule Schedule

	// RunContext — контекст запусков шагов (nil — context.Background()).
	RunContext context.Context

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runCtx := cfg.RunContext
	if runCtx == nil {
		runCtx = context.Background()
	}

	return &Handler{
		engine:   cfg.Engine,
		runs:     cfg.Runs,
		settings: cfg.Settings,
		events:   cfg.Events,
		schedule: cfg.Schedule,
		logger:   logger.With("component", "api"),
		runCtx:   runCtx,
	}
}

// stepResponse собирает StepResponse с next_run из Schedule.
func (h *Handler) stepResponse(s domain.Step, state domain.StepState, running bool) StepResponse {
	resp := StepFromDomain(s, state, running)
	if h.schedule != nil {
		if next, ok := h.schedule.NextDue(s.Name); ok {
			resp.NextRun = &next
		}
	}
	return resp
}

// Wait дожидается запусков шагов, начатых через API.
func (h *Handler) Wait() {
	h.running.Wait()
}
