// Package retryactive реализует HTTP-обработчик повторной выдачи кода активации.
//
// Старый код перестаёт действовать, на email уходит новый.
package retryactive

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/account-service/internal/http/response"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/services/account"
)

// Request email неактивированного аккаунта.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// Service описывает повторную выдачу кода.
type Service interface {
	RetryCode(ctx context.Context, email string) (*account.RetryResult, error)
}

// Handler обрабатывает запросы повторной выдачи кода.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Повторная отправка кода активации
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Email пользователя"
// @Success 200 {object} response.Response{data=map[string]any}
// @Failure 400 {object} response.ErrorResponse "Пользователь не найден или уже активен"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/retry-active [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.retryactive"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var vErrs validator.ValidationErrors
		if !errors.As(err, &vErrs) {
			log.Error("validation failed", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid request"))
			return
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(vErrs))
		return
	}

	res, err := h.service.RetryCode(r.Context(), req.Email)
	if err != nil {
		status, msg := response.FromError(err)
		// на публичном маршруте отсутствие пользователя не отличается от прочих отказов
		if errors.Is(err, account.ErrUserNotFound) {
			status = http.StatusBadRequest
		}
		if status == http.StatusInternalServerError {
			log.Error("failed to reissue activation code", sl.Err(err))
		} else {
			log.Info("code reissue rejected", slog.String("email", req.Email), sl.Err(err))
		}
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	if res.NotifyErr != nil {
		log.Warn("activation code reissued but email was not sent",
			slog.String("user_id", res.ID), sl.Err(res.NotifyErr))
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"id":                res.ID,
		"notification_sent": res.NotifyErr == nil,
	}))
}
