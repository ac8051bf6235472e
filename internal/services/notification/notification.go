// Package notification доставляет письма с кодом активации.
//
// В API используется Queue (публикация в RabbitMQ) или Mailer (прямая отправка по SMTP).
// Сервис отправки читает очередь и передаёт сообщения в Mailer.HandleActivationMessage.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/account-service/internal/lib/rabbitmq"
)

// ActivationMessage тело сообщения в очереди активации.
type ActivationMessage struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Code  string `json:"code"`
}

// Publisher публикует сообщение с ключом маршрутизации.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Queue ставит письма в очередь RabbitMQ.
type Queue struct {
	publisher Publisher
}

// NewQueue создаёт отправителя через очередь.
func NewQueue(publisher Publisher) *Queue {
	return &Queue{publisher: publisher}
}

// SendActivationEmail публикует сообщение для сервиса отправки писем.
func (q *Queue) SendActivationEmail(ctx context.Context, to, name, code string) error {
	const op = "notification.Queue.SendActivationEmail"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := ActivationMessage{Email: to, Name: name, Code: code}
	if err := q.publisher.Publish(rabbitmq.ActivationRoutingKey, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LogSender пишет код в лог вместо отправки. Для локального окружения без SMTP.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender создаёт LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

// SendActivationEmail логирует письмо.
func (s *LogSender) SendActivationEmail(_ context.Context, to, name, code string) error {
	s.log.Info("activation email (not sent)",
		slog.String("to", to), slog.String("name", name), slog.String("code", code))
	return nil
}
