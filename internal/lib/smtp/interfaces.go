// Package smtp предоставляет транспорт для отправки писем через SMTP с STARTTLS.
package smtp

import "io"

// Client подмножество *smtp.Client, нужное для отправки одного письма.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Dialer открывает аутентифицированную сессию и знает адрес отправителя.
type Dialer interface {
	Connect() (Client, error)
	From() string
}
