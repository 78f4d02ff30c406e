package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/shaiso/harvester/internal/domain"
)

// Step DTOs

// StepResponse — шаг вместе с его текущим состоянием.
type StepResponse struct {
	Name             string                 `json:"name"`
	State            string                 `json:"state"`
	Running          bool                   `json:"running"`
	ConcurrencyLimit int                    `json:"concurrency_limit"`
	RateLimit        float64                `json:"rate_limit,omitempty"`
	Schedule         string                 `json:"schedule,omitempty"`
	Job              domain.JobKind         `json:"job"`
	TaskIters        []domain.GeneratorSpec `json:"task_iters,omitempty"`
	Variables        []string               `json:"variables,omitempty"`
	NextRun          *time.Time             `json:"next_run,omitempty"`
}

// StepFromDomain конвертирует domain.Step в StepResponse.
func StepFromDomain(s domain.Step, state domain.StepState, running bool) StepResponse {
	return StepResponse{
		Name:             s.Name,
		State:            state.String(),
		Running:          running,
		ConcurrencyLimit: s.ConcurrencyLimit,
		RateLimit:        s.RateLimit,
		Schedule:         s.Schedule,
		Job:              s.Job.Kind,
		TaskIters:        s.TaskIters,
		Variables: lo.FlatMap(s.TaskIters, func(g domain.GeneratorSpec, _ int) []string {
			return g.Names()
		}),
	}
}

// UpdateStateRequest — запрос на смену состояния шага.
// State принимает 0|1|2 или "running"|"paused"|"stopped".
type UpdateStateRequest struct {
	State *domain.StepState `json:"state"`
}

// RunStartedResponse — ответ на асинхронный запуск шага.
type RunStartedResponse struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

// Setting DTOs

// SettingLoadedResponse — ответ на загрузку Setting.
type SettingLoadedResponse struct {
	Steps   []string `json:"steps"`
	Version int64    `json:"version,omitempty"`
}

// Run DTOs

// RunResponse — ответ с записью истории запусков.
type RunResponse struct {
	ID         uuid.UUID        `json:"id"`
	Step       string           `json:"step"`
	Status     domain.RunStatus `json:"status"`
	Dispatched int64            `json:"dispatched"`
	Failed     int64            `json:"failed"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
}

// RunFromDomain конвертирует domain.StepRun в RunResponse.
func RunFromDomain(r domain.StepRun) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Step:       r.Step,
		Status:     r.Status,
		Dispatched: r.Dispatched,
		Failed:     r.Failed,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	EventSubscribers int    `json:"event_subscribers"`
	AMQPConnected    *bool  `json:"amqp_connected,omitempty"`
}
