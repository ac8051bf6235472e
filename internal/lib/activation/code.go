// Package activation выпускает коды подтверждения email.
package activation

import "github.com/google/uuid"

// Generate возвращает случайный код активации (UUID v4).
//
// Уникальность статистическая: код проверяется только в паре с id пользователя.
func Generate() string {
	return uuid.NewString()
}
