package mq

import "errors"

// Ошибки транспорта.
var (
	// ErrNoChannel — соединение ещё не установлено или переподключается.
	ErrNoChannel = errors.New("no channel available")

	// ErrPublishNacked — брокер не подтвердил публикацию.
	ErrPublishNacked = errors.New("publish not confirmed by broker")

	// ErrClosed — соединение закрыто.
	ErrClosed = errors.New("connection closed")
)

// ErrReject — обработчик отказывается от сообщения без повторов.
// Сообщение уходит в DLQ. Оборачивается через fmt.Errorf("...: %w", ErrReject).
var ErrReject = errors.New("message rejected")
