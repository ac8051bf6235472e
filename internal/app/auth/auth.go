// Package auth собирает HTTP API сервиса учётных записей: хранилище, кэш,
// лимитер, отправку писем, метрики и маршруты.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"

	// Регистрация swagger-документа для /docs.
	_ "github.com/magabrotheeeer/account-service/docs"
	"github.com/magabrotheeeer/account-service/internal/cache"
	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/account-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-service/internal/lib/jwt"
	"github.com/magabrotheeeer/account-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/account-service/internal/lib/ratelimit"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/lib/smtp"
	"github.com/magabrotheeeer/account-service/internal/metrics"
	"github.com/magabrotheeeer/account-service/internal/migrations"
	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/services/account"
	authservice "github.com/magabrotheeeer/account-service/internal/services/auth"
	"github.com/magabrotheeeer/account-service/internal/services/notification"
	userservice "github.com/magabrotheeeer/account-service/internal/services/users"
	"github.com/magabrotheeeer/account-service/internal/storage/memory"
	"github.com/magabrotheeeer/account-service/internal/storage/repository"
)

// userStore объединяет контракты хранилища всех сервисов.
type userStore interface {
	account.UserStore
	userservice.Store
}

// App HTTP-приложение сервиса учётных записей.
type App struct {
	server  *http.Server
	logger  *slog.Logger
	closers []func() error
}

// New создаёт приложение. Отсутствующий секрет JWT или недоступные
// настроенные зависимости возвращаются ошибкой.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.auth.New"
	app := &App{logger: logger}

	tokens, err := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	checks := map[string]health.Pinger{}

	store, err := app.initStore(ctx, cfg, checks)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		userCache userservice.Cache
		limiter   middlewarectx.Limiter
	)
	if cfg.RedisConnection.AddressRedis != "" {
		redisCache, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.closers = append(app.closers, redisCache.Close)
		checks["redis"] = func(ctx context.Context) error { return redisCache.Db.Ping(ctx).Err() }
		userCache = redisCache
		limiter = ratelimit.NewRedis(redisCache.Db, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)
		logger.Info("redis cache and rate limiter enabled", slog.String("address", cfg.RedisConnection.AddressRedis))
	} else {
		limiter = ratelimit.NewLocal(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		logger.Info("redis is not configured, using in-process rate limiter")
	}

	notifier, err := app.initNotifier(cfg, logger)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	managerOpts := []account.Option{
		account.WithCodeTTL(cfg.Activation.CodeTTL),
		account.WithRecorder(m),
	}
	var authOpts []authservice.Option
	if userCache != nil {
		managerOpts = append(managerOpts, account.WithInvalidator(userCache))
		authOpts = append(authOpts, authservice.WithInvalidator(userCache))
	}
	manager := account.NewManager(store, notifier, logger, managerOpts...)
	authService := authservice.NewService(manager, tokens, store, logger, authOpts...)
	usersService := userservice.NewService(store, userCache, cfg.RedisConnection.CacheTTL, logger)

	if err := bootstrapAdmin(ctx, usersService, cfg.BootstrapAdmin, logger); err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	router := chi.NewRouter()
	RegisterRoutes(router, Deps{
		Logger:  logger,
		Auth:    authService,
		Users:   usersService,
		Limiter: limiter,
		Metrics: m,
		Checks:  checks,
	})

	app.server = &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	return app, nil
}

// initStore выбирает PostgreSQL, если задана строка подключения, иначе хранилище в памяти.
func (a *App) initStore(ctx context.Context, cfg *config.Config, checks map[string]health.Pinger) (userStore, error) {
	if cfg.StorageConnectionString == "" {
		a.logger.Warn("storage connection string is empty, using in-memory store")
		return memory.New(), nil
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}
	if err := repository.CheckDatabaseReady(ctx, db); err != nil {
		return nil, err
	}
	checks["postgres"] = db.DB.PingContext
	a.logger.Info("postgres storage ready")
	return db, nil
}

// initNotifier выбирает доставку писем: очередь RabbitMQ, прямой SMTP или лог.
func (a *App) initNotifier(cfg *config.Config, logger *slog.Logger) (account.Notifier, error) {
	switch {
	case cfg.RabbitMQ.URL != "":
		conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ch.Close)
		logger.Info("activation emails go through rabbitmq")
		return notification.NewQueue(rabbitmq.NewPublisher(ch)), nil
	case cfg.SMTP.Host != "":
		logger.Info("activation emails are sent over smtp", slog.String("host", cfg.SMTP.Host))
		return notification.NewMailer(smtp.NewTransport(cfg.SMTP, logger), logger), nil
	default:
		logger.Warn("neither rabbitmq nor smtp configured, activation codes are only logged")
		return notification.NewLogSender(logger), nil
	}
}

// bootstrapAdmin создаёт администратора из конфига, если его ещё нет.
func bootstrapAdmin(ctx context.Context, svc *userservice.Service, cfg config.BootstrapAdmin, logger *slog.Logger) error {
	if cfg.Email == "" {
		return nil
	}
	user, err := svc.Create(ctx, userservice.CreateInput{
		Name:     cfg.Name,
		Email:    cfg.Email,
		Password: cfg.Password,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			logger.Info("bootstrap admin already exists", slog.String("email", cfg.Email))
			return nil
		}
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.Info("bootstrap admin created", slog.String("user_id", user.ID))
	return nil
}

// Handler возвращает корневой обработчик. Используется в тестах.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run запускает HTTP-сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(timeoutCtx)
	}
}

// close освобождает ресурсы в обратном порядке.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", sl.Err(err))
		}
	}
	a.closers = nil
}
