package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RunStatus — статус одного запуска шага.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
//	        ↘ STOPPED (остановлен командой update_state)
type RunStatus string

const (
	// RunStatusRunning — шаг выполняется.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — итератор исчерпан, все задачи дождались завершения.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusStopped — цикл прерван состоянием Stopped.
	RunStatusStopped RunStatus = "STOPPED"

	// RunStatusFailed — запуск прерван фатальной ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (запуск завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusStopped, RunStatusFailed:
		return true
	default:
		return false
	}
}

// StepState — управляющее состояние шага.
//
// Значения совпадают с тем, что принимает update_state:
// 0 = Running, 1 = Paused, 2 = Stopped.
type StepState uint32

const (
	// StepRunning — задачи диспетчеризуются.
	StepRunning StepState = 0

	// StepPaused — контроллер ждёт смены состояния перед следующим кортежем.
	StepPaused StepState = 1

	// StepStopped — новые задачи не запускаются, запущенные дожидаются.
	StepStopped StepState = 2
)

// Valid возвращает true для известных значений.
func (s StepState) Valid() bool {
	return s <= StepStopped
}

// String возвращает строковое представление StepState.
func (s StepState) String() string {
	switch s {
	case StepRunning:
		return "running"
	case StepPaused:
		return "paused"
	case StepStopped:
		return "stopped"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseStepState парсит состояние из числа (0|1|2) или имени.
func ParseStepState(s string) (StepState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "running", "resume":
		return StepRunning, nil
	case "1", "paused", "pause":
		return StepPaused, nil
	case "2", "stopped", "stop":
		return StepStopped, nil
	default:
		return 0, fmt.Errorf("invalid step state %q", s)
	}
}

// UnmarshalJSON принимает как число, так и строку.
func (s *StepState) UnmarshalJSON(data []byte) error {
	parsed, err := ParseStepState(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
