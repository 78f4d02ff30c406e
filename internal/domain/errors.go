package domain

import "errors"

// Ошибки разбора документа Setting.
var (
	// ErrUnknownGenerator — неизвестный вид генератора в task_iters.
	ErrUnknownGenerator = errors.New("unknown task iter kind")

	// ErrUnknownJob — неизвестный вид job.
	ErrUnknownJob = errors.New("unknown job kind")

	// ErrMalformedVariant — вариант записан не как объект с одним ключом.
	ErrMalformedVariant = errors.New("malformed variant")
)
