// Package models содержит доменную модель пользователя системы,
// включающую данные учётной записи, хэш пароля и состояние активации.
// Структуры используются в бизнес‑логике и при работе с хранилищем.
package models

import (
	"strings"
	"time"
)

// Role роль пользователя.
type Role string

const (
	// RoleUser роль по умолчанию при регистрации.
	RoleUser Role = "user"
	// RoleAdmin администратор, имеет доступ к управлению пользователями.
	RoleAdmin Role = "admin"
)

// Valid сообщает, известна ли роль.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID               string     `json:"id"`                 // Уникальный идентификатор пользователя
	Name             string     `json:"name"`               // Отображаемое имя
	Email            string     `json:"email"`              // Электронная почта, в нижнем регистре
	PasswordHash     string     `json:"-"`                  // Хэш пароля пользователя
	IsActive         bool       `json:"is_active"`          // Подтверждён ли email
	ActiveCode       *string    `json:"-"`                  // Код активации, только пока аккаунт не активен
	ActiveCodeExpiry *time.Time `json:"active_code_expiry"` // Срок действия кода активации
	Role             Role       `json:"role"`
	LatestLogin      *time.Time `json:"latest_login"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Pending сообщает, ожидает ли аккаунт активации.
func (u *User) Pending() bool {
	return !u.IsActive && u.ActiveCode != nil
}

// Summary возвращает публичное представление пользователя.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// UserSummary данные пользователя без секретов, отдаются клиенту.
type UserSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail приводит email к каноничному виду для сравнения без учёта регистра.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserPatch частичное обновление пользователя.
//
// Nil-поля не меняются. If* поля задают условия, при невыполнении которых
// обновление не применяется и хранилище отвечает как при отсутствии записи.
type UserPatch struct {
	Name             *string
	PasswordHash     *string
	Role             *Role
	IsActive         *bool
	ActiveCode       *string
	ActiveCodeExpiry *time.Time
	ClearActiveCode  bool
	LatestLogin      *time.Time

	IfActiveCode  *string    // active_code должен совпадать
	IfCodeValidAt *time.Time // active_code_expiry должен быть строго позже
	IfPending     bool       // аккаунт ещё не активирован
}

// UserFilter параметры выборки списка пользователей.
type UserFilter struct {
	Email  string // подстрока email без учёта регистра
	Name   string // подстрока имени без учёта регистра
	Limit  int
	Offset int
}
