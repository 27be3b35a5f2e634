package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrLockNotAcquired — строку блокировки не удалось захватить до отмены ctx.
	ErrLockNotAcquired = errors.New("scan lock not acquired")
)
