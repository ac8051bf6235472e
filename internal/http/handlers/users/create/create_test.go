package create

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/services/account"
	"github.com/magabrotheeeer/account-service/internal/services/users"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, in users.CreateInput) (*models.User, error) {
	args := m.Called(ctx, in)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func TestCreateHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		body       string
		input      *users.CreateInput
		mockUser   *models.User
		mockErr    error
		wantStatus int
		wantError  string
	}{
		{
			name:       "admin created",
			body:       `{"name":"Root","email":"root@example.com","password":"secret1","role":"admin"}`,
			input:      &users.CreateInput{Name: "Root", Email: "root@example.com", Password: "secret1", Role: models.RoleAdmin},
			mockUser:   &models.User{ID: "u-1", Email: "root@example.com", Role: models.RoleAdmin, IsActive: true},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "role defaults in service",
			body:       `{"email":"u@example.com","password":"secret1"}`,
			input:      &users.CreateInput{Email: "u@example.com", Password: "secret1"},
			mockUser:   &models.User{ID: "u-2", Email: "u@example.com", Role: models.RoleUser, IsActive: true},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "unknown role",
			body:       `{"email":"u@example.com","password":"secret1","role":"root"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "field Role must be one of: user admin",
		},
		{
			name:       "duplicate",
			body:       `{"email":"u@example.com","password":"secret1"}`,
			input:      &users.CreateInput{Email: "u@example.com", Password: "secret1"},
			mockErr:    fmt.Errorf("users.Create: %w", account.ErrDuplicateEmail),
			wantStatus: http.StatusBadRequest,
			wantError:  "email already registered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			if tt.input != nil {
				mockService.On("Create", mock.Anything, *tt.input).Return(tt.mockUser, tt.mockErr).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			New(logger, mockService).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var got map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got["error"])
			} else {
				data, ok := got["data"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, tt.mockUser.ID, data["id"])
				assert.Equal(t, true, data["is_active"])
			}
			mockService.AssertExpectations(t)
		})
	}
}
