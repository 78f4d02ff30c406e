package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Имена уведомлений.
const (
	NotifyStatus   = "status"
	NotifyProgress = "progress"
	NotifyError    = "error"
)

// Значения поля Status для уведомлений "status".
const (
	StatusStart = "start"
	StatusEnd   = "end"
)

// Notification — событие хода выполнения шага.
//
// Единственный видимый пользователю сигнал: start, прогресс по каждой
// задаче, ошибки отдельных задач, end.
type Notification struct {
	// Name — "status", "progress" или "error".
	Name string `json:"name"`

	// Status — "start"/"end" для status, пусто для остальных.
	Status string `json:"status"`

	// Message — человекочитаемое описание.
	Message string `json:"message"`

	// Step — имя шага.
	Step string `json:"step"`

	// RunID — идентификатор запуска.
	RunID uuid.UUID `json:"run_id"`

	// Time — момент события.
	Time time.Time `json:"time"`
}

// StartNotification — шаг начал выполняться.
func StartNotification(step string, runID uuid.UUID) Notification {
	return Notification{
		Name:    NotifyStatus,
		Status:  StatusStart,
		Message: fmt.Sprintf("Start Step %s", step),
		Step:    step,
		RunID:   runID,
		Time:    time.Now(),
	}
}

// EndNotification — шаг завершился.
func EndNotification(step string, runID uuid.UUID) Notification {
	return Notification{
		Name:    NotifyStatus,
		Status:  StatusEnd,
		Message: fmt.Sprintf("End Step %s", step),
		Step:    step,
		RunID:   runID,
		Time:    time.Now(),
	}
}

// ProgressNotification — задача завершилась (успешно или нет).
func ProgressNotification(step string, runID uuid.UUID, message string) Notification {
	return Notification{
		Name:    NotifyProgress,
		Message: message,
		Step:    step,
		RunID:   runID,
		Time:    time.Now(),
	}
}

// ErrorNotification — ошибка задачи или шага.
func ErrorNotification(step string, runID uuid.UUID, err error) Notification {
	return Notification{
		Name:    NotifyError,
		Message: err.Error(),
		Step:    step,
		RunID:   runID,
		Time:    time.Now(),
	}
}
