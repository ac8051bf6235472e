// Package storage описывает общие ошибки хранилищ пользователей.
// Реализации находятся в подпакетах repository и memory.
package storage

import "errors"

var (
	// ErrNotFound запись не найдена или условие обновления не выполнено.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict нарушено ограничение уникальности (email).
	ErrConflict = errors.New("storage: conflict")
)
