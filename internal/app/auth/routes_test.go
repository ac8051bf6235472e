package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/lib/jwt"
	"github.com/magabrotheeeer/account-service/internal/lib/ratelimit"
	"github.com/magabrotheeeer/account-service/internal/metrics"
	"github.com/magabrotheeeer/account-service/internal/services/account"
	authservice "github.com/magabrotheeeer/account-service/internal/services/auth"
	userservice "github.com/magabrotheeeer/account-service/internal/services/users"
	"github.com/magabrotheeeer/account-service/internal/storage/memory"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// codeCapture запоминает последний отправленный код по email.
type codeCapture struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeCapture) SendActivationEmail(_ context.Context, to, _, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[to] = code
	return nil
}

func (c *codeCapture) code(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

type client struct {
	t       *testing.T
	handler http.Handler
}

func (c client) do(method, path, token string, body any) (int, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec.Code, env
}

func newTestRouter(t *testing.T, limit int) (http.Handler, *codeCapture, *memory.Storage) {
	t.Helper()
	logger := newNoopLogger()
	store := memory.New()
	capture := &codeCapture{codes: map[string]string{}}

	tokens, err := jwt.NewJWTMaker("test-secret", time.Hour)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	manager := account.NewManager(store, capture, logger, account.WithRecorder(m))

	r := chi.NewRouter()
	RegisterRoutes(r, Deps{
		Logger:  logger,
		Auth:    authservice.NewService(manager, tokens, store, logger),
		Users:   userservice.NewService(store, nil, time.Minute, logger),
		Limiter: ratelimit.NewLocal(limit, time.Minute),
		Metrics: m,
	})
	return r, capture, store
}

func TestRoutes_RegistrationFlow(t *testing.T) {
	router, capture, _ := newTestRouter(t, 100)
	c := client{t: t, handler: router}

	status, env := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "Carol@Example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var registered struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		Email            string `json:"email"`
		IsActive         bool   `json:"is_active"`
		NotificationSent bool   `json:"notification_sent"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &registered))
	assert.Equal(t, "carol@example.com", registered.Email)
	assert.Equal(t, "carol", registered.Name)
	assert.False(t, registered.IsActive)
	assert.True(t, registered.NotificationSent)

	status, env = c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "carol@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "email already registered", env.Error)

	code := capture.code("carol@example.com")
	require.NotEmpty(t, code)

	status, env = c.do(http.MethodPost, "/api/v1/auth/check-code", "", map[string]string{
		"id": registered.ID, "code": "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid activation code", env.Error)

	status, _ = c.do(http.MethodPost, "/api/v1/auth/check-code", "", map[string]string{
		"id": registered.ID, "code": code,
	})
	assert.Equal(t, http.StatusOK, status)

	status, env = c.do(http.MethodPost, "/api/v1/auth/check-code", "", map[string]string{
		"id": registered.ID, "code": code,
	})
	assert.Equal(t, http.StatusBadRequest, status, "code is single use")
	assert.Equal(t, "invalid activation code", env.Error)

	status, env = c.do(http.MethodPost, "/api/v1/auth/retry-active", "", map[string]string{
		"email": "carol@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "account already active", env.Error)

	status, env = c.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "carol@example.com", "password": "bad-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid email or password", env.Error)

	status, env = c.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "CAROL@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	var login authservice.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)

	status, env = c.do(http.MethodGet, "/api/v1/auth/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var prof map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &prof))
	assert.Equal(t, map[string]string{"id": registered.ID, "email": "carol@example.com", "role": "user"}, prof)

	status, _ = c.do(http.MethodGet, "/api/v1/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = c.do(http.MethodGet, "/api/v1/users", login.Token, nil)
	assert.Equal(t, http.StatusForbidden, status, "regular user cannot reach admin routes")
}

func TestRoutes_RetryReplacesCode(t *testing.T) {
	router, capture, _ := newTestRouter(t, 100)
	c := client{t: t, handler: router}

	status, env := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Dan", "email": "dan@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)
	var registered struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &registered))
	first := capture.code("dan@example.com")

	status, _ = c.do(http.MethodPost, "/api/v1/auth/retry-active", "", map[string]string{"email": "dan@example.com"})
	require.Equal(t, http.StatusOK, status)
	second := capture.code("dan@example.com")
	require.NotEqual(t, first, second)

	status, _ = c.do(http.MethodPost, "/api/v1/auth/check-code", "", map[string]string{"id": registered.ID, "code": first})
	assert.Equal(t, http.StatusBadRequest, status, "old code is no longer valid")

	status, _ = c.do(http.MethodPost, "/api/v1/auth/check-code", "", map[string]string{"id": registered.ID, "code": second})
	assert.Equal(t, http.StatusOK, status)

	status, env = c.do(http.MethodPost, "/api/v1/auth/retry-active", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "user not found", env.Error)
}

func TestRoutes_RateLimitOnPublicRoutes(t *testing.T) {
	router, _, _ := newTestRouter(t, 2)
	c := client{t: t, handler: router}

	body := map[string]string{"email": "x@example.com", "password": "secret1"}
	status, _ := c.do(http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = c.do(http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, env := c.do(http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "too many requests", env.Error)
}

func TestApp_AdminFlow(t *testing.T) {
	cfg := &config.Config{
		Env:            "local",
		HTTPServer:     config.HTTPServer{AddressHTTP: ":0", TimeoutHTTP: time.Second, IdleTimeout: time.Second},
		JWTToken:       config.JWTToken{JWTSecretKey: "app-secret", TokenTTL: time.Hour},
		Activation:     config.Activation{CodeTTL: time.Minute},
		RateLimit:      config.RateLimit{Requests: 100, Window: time.Minute},
		BootstrapAdmin: config.BootstrapAdmin{Name: "root", Email: "root@example.com", Password: "rootpass"},
	}

	app, err := New(context.Background(), cfg, newNoopLogger())
	require.NoError(t, err)
	c := client{t: t, handler: app.Handler()}

	status, env := c.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "root@example.com", "password": "rootpass",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	var login authservice.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	admin := login.Token

	status, _ = c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "eve@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)

	status, env = c.do(http.MethodGet, "/api/v1/users?email=EVE", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var page userservice.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Users, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	eve := page.Users[0]
	assert.False(t, eve.IsActive)

	status, env = c.do(http.MethodPatch, "/api/v1/users/"+eve.ID, admin, map[string]any{"is_active": false})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation failed", env.Error)

	status, env = c.do(http.MethodPatch, "/api/v1/users/"+eve.ID, admin, map[string]any{"is_active": true, "name": "Eve"})
	require.Equal(t, http.StatusOK, status, env.Error)
	var updated map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, true, updated["is_active"])
	assert.Equal(t, "Eve", updated["name"])
	assert.Nil(t, updated["active_code_expiry"])
	assert.NotContains(t, updated, "password_hash")

	status, _ = c.do(http.MethodPost, "/api/v1/users", admin, map[string]string{
		"email": "frank@example.com", "password": "secret1", "role": "admin",
	})
	assert.Equal(t, http.StatusCreated, status)

	status, _ = c.do(http.MethodGet, "/api/v1/users/"+eve.ID, admin, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodDelete, "/api/v1/users/"+eve.ID, admin, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = c.do(http.MethodGet, "/api/v1/users/"+eve.ID, admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "user not found", env.Error)

	status, _ = c.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "account_service_http_requests_total")
}

func TestNew_MissingSecret(t *testing.T) {
	_, err := New(context.Background(), &config.Config{}, newNoopLogger())
	require.ErrorIs(t, err, jwt.ErrMissingSecret)
}
