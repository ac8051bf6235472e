// Package sender собирает сервис отправки писем: читает очередь активации
// и доставляет письма по SMTP.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/lib/smtp"
	"github.com/magabrotheeeer/account-service/internal/services/notification"
)

// ErrNotConfigured не задан адрес брокера или SMTP-сервера.
var ErrNotConfigured = errors.New("rabbitmq url and smtp host are required")

// App сервис отправки писем.
type App struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	mailer *notification.Mailer
	logger *slog.Logger
}

// New подключается к брокеру и готовит отправку писем.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.sender.New"
	if cfg.RabbitMQ.URL == "" || cfg.SMTP.Host == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	return &App{
		conn:   conn,
		ch:     ch,
		mailer: notification.NewMailer(transport, logger),
		logger: logger,
	}, nil
}

// Run читает очередь активации до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.ActivationQueue, a.logger, a.handleActivation)
	if err != nil {
		a.logger.Error("failed to start activation consumer", sl.Err(err))
		return err
	}
	a.logger.Info("sender is consuming", slog.String("queue", rabbitmq.ActivationQueue))

	<-ctx.Done()
	a.logger.Info("Sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}

// handleActivation отбрасывает неразборчивые сообщения без повторной доставки.
func (a *App) handleActivation(body []byte) error {
	err := a.mailer.HandleActivationMessage(body)
	if errors.Is(err, notification.ErrInvalidMessage) {
		a.logger.Error("dropping invalid activation message", sl.Err(err))
		return nil
	}
	return err
}
