package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState — запись в недопустимом для операции статусе.
	ErrInvalidState = errors.New("invalid state")
)
