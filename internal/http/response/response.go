// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Пакет упрощает возврат
// успешных ответов, ошибок и сообщений валидации в едином формате.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/account-service/internal/lib/jwt"
	"github.com/magabrotheeeer/account-service/internal/services/account"
	"github.com/magabrotheeeer/account-service/internal/services/auth"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Status принимает значения "OK" или "Error", Error заполняется при неуспехе,
// Data при успехе.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse структура ошибки для Swagger-документации.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// MsgInternal текст, который получает клиент при непредвиденной ошибке.
const MsgInternal = "internal server error"

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает ответ с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s characters", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s characters", err.Field(), err.Param()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		case "uuid":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only uuid", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// statusByError соответствие ожидаемых ошибок HTTP-статусам.
// Сообщение клиенту берётся из текста sentinel-ошибки, без служебного префикса.
var statusByError = []struct {
	err    error
	status int
}{
	{account.ErrValidation, http.StatusBadRequest},
	{account.ErrDuplicateEmail, http.StatusBadRequest},
	{account.ErrInvalidCode, http.StatusBadRequest},
	{account.ErrCodeExpired, http.StatusBadRequest},
	{account.ErrAlreadyActive, http.StatusBadRequest},
	{account.ErrUserNotFound, http.StatusNotFound},
	{auth.ErrUnauthorized, http.StatusUnauthorized},
	{jwt.ErrInvalidToken, http.StatusUnauthorized},
	{jwt.ErrTokenExpired, http.StatusUnauthorized},
}

// FromError переводит ошибку сервиса в HTTP-статус и сообщение для клиента.
// Всё, что не является ожидаемым исходом, становится 500 без подробностей.
func FromError(err error) (int, string) {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, MsgInternal
}
