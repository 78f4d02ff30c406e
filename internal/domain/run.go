package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepRun — запись об одном запуске шага.
//
// Создаётся в начале run_step и обновляется по его завершении.
// Хранится в истории (repo.StepRunRepo), если подключена БД.
type StepRun struct {
	// ID — уникальный идентификатор запуска.
	ID uuid.UUID `json:"id"`

	// Step — имя шага.
	Step string `json:"step"`

	// Status — текущий статус запуска.
	Status RunStatus `json:"status"`

	// Dispatched — сколько задач было запущено.
	Dispatched int64 `json:"dispatched"`

	// Failed — сколько задач завершилось ошибкой.
	Failed int64 `json:"failed"`

	// Error — текст фатальной ошибки, если статус FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время старта.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока запуск идёт.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewStepRun создаёт запись в статусе RUNNING.
func NewStepRun(step string) *StepRun {
	return &StepRun{
		ID:        uuid.New(),
		Step:      step,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если запуск ещё не завершён.
func (r *StepRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если запуск завершён (в любом статусе).
func (r *StepRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkSucceeded переводит запуск в статус SUCCEEDED.
func (r *StepRun) MarkSucceeded() {
	r.finish(RunStatusSucceeded)
}

// MarkStopped переводит запуск в статус STOPPED.
func (r *StepRun) MarkStopped() {
	r.finish(RunStatusStopped)
}

// MarkFailed переводит запуск в статус FAILED с ошибкой.
func (r *StepRun) MarkFailed(err string) {
	r.Error = err
	r.finish(RunStatusFailed)
}

func (r *StepRun) finish(status RunStatus) {
	now := time.Now()
	r.Status = status
	r.FinishedAt = &now
}
