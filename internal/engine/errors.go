package engine

import "errors"

// Ошибки валидации Setting.
var (
	// ErrEmptySteps — документ не содержит шагов.
	ErrEmptySteps = errors.New("setting has no steps")

	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrStepNameMismatch — ключ в таблице steps не совпадает с name шага.
	ErrStepNameMismatch = errors.New("step name does not match its key")

	// ErrInvalidConcurrency — concurrency_limit меньше 1.
	ErrInvalidConcurrency = errors.New("concurrency_limit must be positive")

	// ErrInvalidGenerator — генератор заполнен некорректно.
	ErrInvalidGenerator = errors.New("invalid task iter")

	// ErrInvalidJob — job заполнен некорректно.
	ErrInvalidJob = errors.New("invalid job")

	// ErrInvalidSchedule — cron-выражение не парсится.
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// Ошибки выборки из JSON.
var (
	// ErrJSONPath — выражение не является ни JSONPath ($...), ни jq (.…).
	ErrJSONPath = errors.New("invalid json path")

	// ErrNoMatch — выражение ничего не выбрало.
	ErrNoMatch = errors.New("json path matched nothing")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Step    string // имя шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Step != "" {
		return "step " + e.Step + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(step, field, message string, err error) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
