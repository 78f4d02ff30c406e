package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownCommand — тип сообщения не поддерживается.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
