package domain

import (
	"errors"
	"fmt"
)

// ErrCollisionExhausted - лимит попыток генерации исчерпан, свободный ключ не найден.
// Для текущей выдачи это фатально, в хранилище ничего не записано.
// Повторять всю операцию или нет - решает вызывающая сторона.
var ErrCollisionExhausted = errors.New("collision retry budget exhausted")

// ValidationError - некорректная форма входных данных (до какой-либо генерации).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// PersistenceError - сбой на коммите (БД недоступна или нарушен constraint).
// Гарантия: батч откатился целиком, частичных записей не осталось.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed on %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RenderError - сбой кодирования артефакта. Запись уже durable,
// рендер можно повторить в любой момент.
type RenderError struct {
	Key string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed for key %s: %v", e.Key, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
