package register

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/services/account"
	"github.com/magabrotheeeer/account-service/internal/services/auth"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Register(ctx context.Context, name, email, password string) (*account.RegisterResult, error) {
	args := m.Called(ctx, name, email, password)
	res, _ := args.Get(0).(*account.RegisterResult)
	return res, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestRegisterHandler_ServeHTTP(t *testing.T) {
	user := &models.User{
		ID:        "0b7c4a9e-9a2f-4a55-8d1f-3f1c3f1b2a10",
		Name:      "alice",
		Email:     "alice@example.com",
		Role:      models.RoleUser,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name           string
		body           string
		setupMock      func(m *ServiceMock)
		wantStatusCode int
		wantError      string
		wantData       map[string]any
	}{
		{
			name: "created with notification",
			body: `{"email":"alice@example.com","password":"secret1"}`,
			setupMock: func(m *ServiceMock) {
				m.On("Register", mock.Anything, "", "alice@example.com", "secret1").
					Return(&account.RegisterResult{User: user}, nil).Once()
			},
			wantStatusCode: http.StatusCreated,
			wantData: map[string]any{
				"id":                user.ID,
				"email":             "alice@example.com",
				"is_active":         false,
				"notification_sent": true,
			},
		},
		{
			name: "created but email failed",
			body: `{"name":"Alice","email":"alice@example.com","password":"secret1"}`,
			setupMock: func(m *ServiceMock) {
				m.On("Register", mock.Anything, "Alice", "alice@example.com", "secret1").
					Return(&account.RegisterResult{User: user, NotifyErr: errors.New("smtp down")}, nil).Once()
			},
			wantStatusCode: http.StatusCreated,
			wantData: map[string]any{
				"id":                user.ID,
				"notification_sent": false,
			},
		},
		{
			name:           "invalid json",
			body:           `not a json`,
			setupMock:      func(_ *ServiceMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "invalid request body",
		},
		{
			name:           "short password",
			body:           `{"email":"alice@example.com","password":"123"}`,
			setupMock:      func(_ *ServiceMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "field Password must be at least 6 characters",
		},
		{
			name:           "password over bcrypt limit",
			body:           `{"email":"alice@example.com","password":"` + strings.Repeat("p", 80) + `"}`,
			setupMock:      func(_ *ServiceMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "field Password must be at most 72 characters",
		},
		{
			name:           "bad email",
			body:           `{"email":"alice","password":"secret1"}`,
			setupMock:      func(_ *ServiceMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "field Email must be a valid email",
		},
		{
			name: "duplicate email",
			body: `{"email":"alice@example.com","password":"secret1"}`,
			setupMock: func(m *ServiceMock) {
				m.On("Register", mock.Anything, "", "alice@example.com", "secret1").
					Return(nil, fmt.Errorf("auth.Register: %w", account.ErrDuplicateEmail)).Once()
			},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "email already registered",
		},
		{
			name: "internal error is not leaked",
			body: `{"email":"alice@example.com","password":"secret1"}`,
			setupMock: func(m *ServiceMock) {
				m.On("Register", mock.Anything, "", "alice@example.com", "secret1").
					Return(nil, fmt.Errorf("auth.Register: %w: %w", auth.ErrInternal, errors.New("pq: connection reset"))).Once()
			},
			wantStatusCode: http.StatusInternalServerError,
			wantError:      "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMock(svc)
			handler := New(newNoopLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewBufferString(tt.body))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var got map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))

			if tt.wantError != "" {
				assert.Equal(t, "Error", got["status"])
				assert.Equal(t, tt.wantError, got["error"])
				assert.Nil(t, got["data"])
			} else {
				assert.Equal(t, "OK", got["status"])
				data, ok := got["data"].(map[string]any)
				require.True(t, ok)
				for k, v := range tt.wantData {
					assert.Equal(t, v, data[k], k)
				}
				assert.NotContains(t, data, "password_hash")
			}
			svc.AssertExpectations(t)
		})
	}
}
