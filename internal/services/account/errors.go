package account

import "errors"

// Ожидаемые исходы операций жизненного цикла. Проверяются через errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrInvalidCode    = errors.New("invalid activation code")
	ErrCodeExpired    = errors.New("activation code expired")
	ErrUserNotFound   = errors.New("user not found")
	ErrAlreadyActive  = errors.New("account already active")
)
