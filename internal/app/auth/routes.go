package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/account-service/internal/http/handlers/auth/checkcode"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/auth/profile"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/auth/retryactive"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/users/create"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/users/list"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/users/read"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/users/remove"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/users/update"
	"github.com/magabrotheeeer/account-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-service/internal/metrics"
	"github.com/magabrotheeeer/account-service/internal/models"
	authservice "github.com/magabrotheeeer/account-service/internal/services/auth"
	userservice "github.com/magabrotheeeer/account-service/internal/services/users"
)

// access уровень доступа маршрута.
type access int

const (
	public access = iota
	authenticated
	admin
)

// route строка таблицы маршрутов API.
type route struct {
	method  string
	pattern string
	handler http.Handler
	access  access
	limited bool
}

// Deps зависимости HTTP-слоя.
type Deps struct {
	Logger  *slog.Logger
	Auth    *authservice.Service
	Users   *userservice.Service
	Limiter middlewarectx.Limiter
	Metrics *metrics.Metrics
	Checks  map[string]health.Pinger
}

// apiRoutes явная таблица маршрутов /api/v1. Всё, что не public, проходит через JWTMiddleware.
func apiRoutes(d Deps) []route {
	return []route{
		{http.MethodPost, "/auth/register", register.New(d.Logger, d.Auth), public, true},
		{http.MethodPost, "/auth/login", login.New(d.Logger, d.Auth), public, true},
		{http.MethodPost, "/auth/check-code", checkcode.New(d.Logger, d.Auth), public, true},
		{http.MethodPost, "/auth/retry-active", retryactive.New(d.Logger, d.Auth), public, true},
		{http.MethodGet, "/auth/profile", profile.New(d.Logger), authenticated, false},

		{http.MethodPost, "/users", create.New(d.Logger, d.Users), admin, false},
		{http.MethodGet, "/users", list.New(d.Logger, d.Users), admin, false},
		{http.MethodGet, "/users/{id}", read.New(d.Logger, d.Users), admin, false},
		{http.MethodPatch, "/users/{id}", update.New(d.Logger, d.Users), admin, false},
		{http.MethodDelete, "/users/{id}", remove.New(d.Logger, d.Users), admin, false},
	}
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, d Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.MetricsMiddleware(d.Metrics),
	)

	r.Route("/api/v1", func(r chi.Router) {
		for _, rt := range apiRoutes(d) {
			var chain []func(http.Handler) http.Handler
			if rt.limited {
				chain = append(chain, middlewarectx.RateLimitMiddleware(d.Limiter, d.Metrics, d.Logger))
			}
			if rt.access != public {
				chain = append(chain, middlewarectx.JWTMiddleware(d.Auth, d.Logger))
			}
			if rt.access == admin {
				chain = append(chain, middlewarectx.RequireRole(models.RoleAdmin, d.Logger))
			}
			r.With(chain...).Method(rt.method, rt.pattern, rt.handler)
		}
	})

	r.Get("/health", health.New(d.Logger, d.Checks).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
