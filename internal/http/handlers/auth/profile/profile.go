// Package profile отдаёт данные сессии текущего пользователя.
package profile

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-service/internal/http/response"
)

// Profile данные из токена.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Handler отдаёт профиль. Работает только за JWTMiddleware.
type Handler struct {
	log *slog.Logger
}

// New создаёт Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Профиль текущего пользователя
// @Tags Auth
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=Profile}
// @Failure 401 {object} response.ErrorResponse "Нет или неверный токен"
// @Router /auth/profile [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := middlewarectx.ClaimsFromContext(r.Context())
	if !ok {
		h.log.Error("claims missing in context",
			slog.String("op", "handlers.auth.profile"),
			slog.String("request_id", middleware.GetReqID(r.Context())))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(Profile{
		ID:    claims.ID,
		Email: claims.Email,
		Role:  claims.Role,
	}))
}
