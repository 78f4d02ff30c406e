package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrStepNotFound — шаг с таким именем не загружен.
	ErrStepNotFound = errors.New("Step not found")

	// ErrStepBusy — шаг уже выполняется.
	ErrStepBusy = errors.New("step is already running")

	// ErrInvalidState — неизвестное значение состояния шага.
	ErrInvalidState = errors.New("invalid step state")

	// ErrNoSetting — Setting ещё не загружен.
	ErrNoSetting = errors.New("setting not loaded")
)
