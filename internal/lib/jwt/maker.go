// Package jwt реализует выпуск и проверку сессионных JWT токенов.
//
// Maker определяет интерфейс для создания и проверки токенов с id, email и ролью.
// MakerImpl это конкретная реализация на HS256 с секретным ключом и сроком жизни.
package jwt

import (
	"errors"
	"time"
)

// DefaultTokenTTL время жизни токена по умолчанию.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrMissingSecret возвращается при старте, если секрет подписи не задан.
	ErrMissingSecret = errors.New("jwt signing secret is not configured")
	// ErrInvalidToken неверная подпись, формат или алгоритм токена.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	// Issue подписывает токен с данными сессии.
	Issue(session Session) (string, error)
	// ParseToken проверяет подпись и срок действия, возвращает claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey []byte        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
	now       func() time.Time
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
//
// Пустой секрет считается ошибкой конфигурации, процесс не должен стартовать.
func NewJWTMaker(secretKey string, ttl time.Duration) (*MakerImpl, error) {
	if secretKey == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &MakerImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}, nil
}
