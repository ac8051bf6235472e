package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/lib/smtp"
)

const activationSubject = "Activate your account"

// ErrInvalidMessage сообщение из очереди не удалось разобрать.
var ErrInvalidMessage = errors.New("invalid activation message")

// Mailer отправляет письма через SMTP.
type Mailer struct {
	transport smtp.Dialer
	log       *slog.Logger
}

// NewMailer создает новый экземпляр Mailer.
func NewMailer(transport smtp.Dialer, log *slog.Logger) *Mailer {
	return &Mailer{
		transport: transport,
		log:       log,
	}
}

// SendActivationEmail отправляет письмо с кодом активации.
func (m *Mailer) SendActivationEmail(ctx context.Context, to, name, code string) error {
	const op = "notification.Mailer.SendActivationEmail"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	body := fmt.Sprintf("Hello, %s!\n\nYour activation code: %s\n\nThe code expires in a few minutes. "+
		"If it has expired, request a new one.", name, code)
	if err := m.sendEmail(to, activationSubject, body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HandleActivationMessage обрабатывает сообщение из очереди активации.
func (m *Mailer) HandleActivationMessage(body []byte) error {
	const op = "notification.Mailer.HandleActivationMessage"
	var msg ActivationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		m.log.Error("failed to unmarshal message body", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidMessage, err)
	}
	if msg.Email == "" || msg.Code == "" {
		return fmt.Errorf("%s: %w: email and code are required", op, ErrInvalidMessage)
	}
	return m.SendActivationEmail(context.Background(), msg.Email, msg.Name, msg.Code)
}

// headerSafe убирает переводы строк, чтобы значение не могло добавить заголовки.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func (m *Mailer) sendEmail(to, subject, bodyText string) error {
	from := m.transport.From()
	to = headerSafe(to)
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + headerSafe(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := m.transport.Connect()
	if err != nil {
		m.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		m.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}
	if err := client.Rcpt(to); err != nil {
		m.log.Error("failed to set RCPT TO", slog.String("recipient", to), sl.Err(err))
		return err
	}

	wc, err := client.Data()
	if err != nil {
		m.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		m.log.Error("failed to write email body", sl.Err(err))
		_ = wc.Close()
		return err
	}
	if err = wc.Close(); err != nil {
		m.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		m.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	m.log.Info("email sent successfully", slog.String("to", to))
	return nil
}
