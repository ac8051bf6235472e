// Package checkcode реализует HTTP-обработчик активации аккаунта по коду из письма.
package checkcode

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
)

// Request идентификатор пользователя и код активации.
type Request struct {
	ID   string `json:"id" validate:"required"`
	Code string `json:"code" validate:"required"`
}

// Service описывает проверку кода активации.
type Service interface {
	VerifyCode(ctx context.Context, id, code string) error
}

// Handler обрабатывает запросы активации.
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
// @Summary Активация аккаунта
// @Description Проверяет код активации. Код одноразовый и действует ограниченное время.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "ID пользователя и код"
// @Success 200 {object} response.Response{data=map[string]string}
// @Failure 400 {object} response.ErrorResponse "Неверный или истёкший код"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/check-code [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.checkcode"

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

	if err := h.service.VerifyCode(r.Context(), req.ID, req.Code); err != nil {
		status, msg := response.FromError(err)
		if status == http.StatusInternalServerError {
			log.Error("failed to activate account", sl.Err(err))
		} else {
			log.Info("activation rejected", slog.String("user_id", req.ID), sl.Err(err))
		}
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("account activated", slog.String("user_id", req.ID))
	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"id": req.ID,
	}))
}
