// Package password реализует функции для безопасного хеширования и проверки паролей.
//
// Hash создает bcrypt-хеш пароля для безопасного хранения.
// Verify сравнивает введённый пароль с сохранённым bcrypt-хешем.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinLength минимальная допустимая длина пароля.
	MinLength = 6
	// MaxLength предел bcrypt в байтах.
	MaxLength = 72
)

// ErrInvalidInput возвращается при пустом, слишком коротком или слишком длинном пароле.
var ErrInvalidInput = errors.New("invalid password input")

// Hash принимает пароль пользователя и возвращает его bcrypt‑хэш.
//
// Соль и стоимость хранятся внутри хэша, поэтому повторный вызов
// для одного и того же пароля даёт другую строку.
func Hash(plain string) (string, error) {
	const op = "password.Hash"
	if len(plain) < MinLength {
		return "", fmt.Errorf("%s: %w: must be at least %d characters", op, ErrInvalidInput, MinLength)
	}
	if len(plain) > MaxLength {
		return "", fmt.Errorf("%s: %w: must be at most %d bytes", op, ErrInvalidInput, MaxLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Verify сравнивает bcrypt‑хэш с введённым паролем.
//
// Возвращает false при несовпадении или повреждённом хэше. Ошибка возвращается только
// если один из аргументов пустой.
func Verify(plain, hash string) (bool, error) {
	const op = "password.Verify"
	if plain == "" || hash == "" {
		return false, fmt.Errorf("%s: %w: password and hash are required", op, ErrInvalidInput)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return false, nil
	}
	return true, nil
}
