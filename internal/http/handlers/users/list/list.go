// Package list реализует HTTP-обработчик постраничного списка пользователей.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-service/internal/http/response"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/services/users"
)

// Service описывает выборку пользователей.
type Service interface {
	List(ctx context.Context, in users.ListInput) (*users.Page, error)
}

// Handler обрабатывает запросы списка.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Список пользователей
// @Description Постраничная выборка с фильтрами по подстроке email и имени без учёта регистра.
// @Tags Users
// @Produce  json
// @Security BearerAuth
// @Param page query int false "Номер страницы, по умолчанию 1"
// @Param limit query int false "Размер страницы, по умолчанию 10"
// @Param email query string false "Фильтр по email"
// @Param name query string false "Фильтр по имени"
// @Success 200 {object} response.Response{data=users.Page}
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры"
// @Failure 403 {object} response.ErrorResponse "Нет прав администратора"
// @Router /users [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	q := r.URL.Query()
	page, err := intParam(q.Get("page"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("page must be a positive integer"))
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("limit must be a positive integer"))
		return
	}

	res, err := h.service.List(r.Context(), users.ListInput{
		Page:  page,
		Limit: limit,
		Email: q.Get("email"),
		Name:  q.Get("name"),
	})
	if err != nil {
		status, msg := response.FromError(err)
		log.Error("failed to list users", sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(res))
}

// intParam разбирает необязательный положительный параметр. Пустое значение даёт 0.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, strconv.ErrRange
	}
	return v, nil
}
