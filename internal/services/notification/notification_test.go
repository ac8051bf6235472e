package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/account-service/internal/lib/smtp"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) From() string {
	args := m.Called()
	return args.String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSMTPClient) Quit() error {
	args := m.Called()
	return args.Error(0)
}

// bufferWriter собирает тело письма.
type bufferWriter struct {
	strings.Builder
	closeErr error
}

func (w *bufferWriter) Close() error { return w.closeErr }

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(routingKey string, message any) error {
	args := m.Called(routingKey, message)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestMailer_SendActivationEmail(t *testing.T) {
	tests := []struct {
		name         string
		setupMocks   func(tr *MockTransport, c *MockSMTPClient, w *bufferWriter)
		wantErr      bool
		errorMessage string
	}{
		{
			name: "success",
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, w *bufferWriter) {
				tr.On("From").Return("sender@example.com")
				tr.On("Connect").Return(c, nil).Once()
				c.On("Mail", "sender@example.com").Return(nil).Once()
				c.On("Rcpt", "a@x.com").Return(nil).Once()
				c.On("Data").Return(w, nil).Once()
				c.On("Quit").Return(nil).Once()
				c.On("Close").Return(nil).Once()
			},
		},
		{
			name: "connection error",
			setupMocks: func(tr *MockTransport, _ *MockSMTPClient, _ *bufferWriter) {
				tr.On("From").Return("sender@example.com")
				tr.On("Connect").Return(nil, errors.New("connection error")).Once()
			},
			wantErr:      true,
			errorMessage: "connection error",
		},
		{
			name: "recipient rejected",
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, _ *bufferWriter) {
				tr.On("From").Return("sender@example.com")
				tr.On("Connect").Return(c, nil).Once()
				c.On("Mail", "sender@example.com").Return(nil).Once()
				c.On("Rcpt", "a@x.com").Return(errors.New("550 no such user")).Once()
				c.On("Close").Return(nil).Once()
			},
			wantErr:      true,
			errorMessage: "550 no such user",
		},
		{
			name: "data close error",
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, w *bufferWriter) {
				w.closeErr = errors.New("451 try later")
				tr.On("From").Return("sender@example.com")
				tr.On("Connect").Return(c, nil).Once()
				c.On("Mail", "sender@example.com").Return(nil).Once()
				c.On("Rcpt", "a@x.com").Return(nil).Once()
				c.On("Data").Return(w, nil).Once()
				c.On("Close").Return(nil).Once()
			},
			wantErr:      true,
			errorMessage: "451 try later",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			client := new(MockSMTPClient)
			writer := &bufferWriter{}
			tt.setupMocks(transport, client, writer)

			mailer := NewMailer(transport, newNoopLogger())
			err := mailer.SendActivationEmail(context.Background(), "a@x.com", "Alice", "code-123")

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
			} else {
				require.NoError(t, err)
				body := writer.String()
				assert.Contains(t, body, "Subject: Activate your account\r\n")
				assert.Contains(t, body, "To: a@x.com\r\n")
				assert.Contains(t, body, "Hello, Alice!")
				assert.Contains(t, body, "code-123")
			}

			transport.AssertExpectations(t)
			client.AssertExpectations(t)
		})
	}
}

func TestMailer_HandleActivationMessage(t *testing.T) {
	tests := []struct {
		name       string
		body       []byte
		setupMocks func(tr *MockTransport, c *MockSMTPClient, w *bufferWriter)
		wantErr    error
	}{
		{
			name: "success",
			body: []byte(`{"email":"a@x.com","name":"Alice","code":"code-123"}`),
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, w *bufferWriter) {
				tr.On("From").Return("sender@example.com")
				tr.On("Connect").Return(c, nil).Once()
				c.On("Mail", "sender@example.com").Return(nil).Once()
				c.On("Rcpt", "a@x.com").Return(nil).Once()
				c.On("Data").Return(w, nil).Once()
				c.On("Quit").Return(nil).Once()
				c.On("Close").Return(nil).Once()
			},
		},
		{
			name:       "invalid JSON",
			body:       []byte(`invalid json`),
			setupMocks: func(_ *MockTransport, _ *MockSMTPClient, _ *bufferWriter) {},
			wantErr:    ErrInvalidMessage,
		},
		{
			name:       "missing code",
			body:       []byte(`{"email":"a@x.com"}`),
			setupMocks: func(_ *MockTransport, _ *MockSMTPClient, _ *bufferWriter) {},
			wantErr:    ErrInvalidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			client := new(MockSMTPClient)
			writer := &bufferWriter{}
			tt.setupMocks(transport, client, writer)

			err := NewMailer(transport, newNoopLogger()).HandleActivationMessage(tt.body)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			transport.AssertExpectations(t)
		})
	}
}

func TestMailer_HeaderInjection(t *testing.T) {
	transport := new(MockTransport)
	client := new(MockSMTPClient)
	writer := &bufferWriter{}
	transport.On("From").Return("sender@example.com")
	transport.On("Connect").Return(client, nil).Once()
	client.On("Mail", "sender@example.com").Return(nil).Once()
	client.On("Rcpt", "a@x.comBcc: evil@x.com").Return(nil).Once()
	client.On("Data").Return(writer, nil).Once()
	client.On("Quit").Return(nil).Once()
	client.On("Close").Return(nil).Once()

	err := NewMailer(transport, newNoopLogger()).
		SendActivationEmail(context.Background(), "a@x.com\r\nBcc: evil@x.com", "Alice", "code")
	require.NoError(t, err)
	assert.NotContains(t, writer.String(), "\r\nBcc:")
}

func TestQueue_SendActivationEmail(t *testing.T) {
	t.Run("publishes activation message", func(t *testing.T) {
		pub := new(MockPublisher)
		pub.On("Publish", rabbitmq.ActivationRoutingKey, ActivationMessage{
			Email: "a@x.com", Name: "Alice", Code: "code-123",
		}).Return(nil).Once()

		err := NewQueue(pub).SendActivationEmail(context.Background(), "a@x.com", "Alice", "code-123")
		require.NoError(t, err)
		pub.AssertExpectations(t)
	})

	t.Run("publish error", func(t *testing.T) {
		pub := new(MockPublisher)
		pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("channel closed")).Once()

		err := NewQueue(pub).SendActivationEmail(context.Background(), "a@x.com", "Alice", "code-123")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "channel closed")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewQueue(new(MockPublisher)).SendActivationEmail(ctx, "a@x.com", "Alice", "code-123")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(newNoopLogger()).SendActivationEmail(context.Background(), "a@x.com", "A", "c"))
}
