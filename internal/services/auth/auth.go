// Package auth объединяет операции входа, регистрации и активации в единый API
// и переводит результаты в ошибки уровня сервиса.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/account-service/internal/cache"
	"github.com/magabrotheeeer/account-service/internal/lib/jwt"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/services/account"
)

var (
	// ErrUnauthorized неверный email или пароль. Причина не уточняется.
	ErrUnauthorized = errors.New("invalid email or password")
	// ErrInternal непредвиденный сбой. Исходная ошибка остаётся в цепочке для логов.
	ErrInternal = errors.New("internal error")
)

// domainErrors ожидаемые исходы, которые отдаются вызывающему как есть.
var domainErrors = []error{
	account.ErrValidation,
	account.ErrDuplicateEmail,
	account.ErrInvalidCode,
	account.ErrCodeExpired,
	account.ErrUserNotFound,
	account.ErrAlreadyActive,
	jwt.ErrInvalidToken,
	jwt.ErrTokenExpired,
	ErrUnauthorized,
}

// Lifecycle операции жизненного цикла учётной записи.
type Lifecycle interface {
	Register(ctx context.Context, name, email, password string) (*account.RegisterResult, error)
	Activate(ctx context.Context, id, code string) error
	RetryActivation(ctx context.Context, email string) (*account.RetryResult, error)
	ValidateCredentials(ctx context.Context, email, password string) (*models.User, error)
}

// LoginTracker сохраняет время последнего входа.
type LoginTracker interface {
	UpdateFields(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
}

// LoginResult данные успешного входа.
type LoginResult struct {
	User  models.UserSummary `json:"user"`
	Token string             `json:"token"`
}

// Service фасад аутентификации.
type Service struct {
	accounts Lifecycle
	tokens   jwt.Maker
	logins   LoginTracker
	cache    account.Invalidator
	log      *slog.Logger
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithInvalidator сбрасывает кэш пользователя после записи времени входа.
func WithInvalidator(c account.Invalidator) Option {
	return func(s *Service) { s.cache = c }
}

// NewService создаёт фасад.
func NewService(accounts Lifecycle, tokens jwt.Maker, logins LoginTracker, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		logins:   logins,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login проверяет учётные данные и выпускает токен сессии.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "auth.Login"

	if email == "" || password == "" {
		return nil, fmt.Errorf("%s: %w: email and password are required", op, account.ErrValidation)
	}

	user, err := s.accounts.ValidateCredentials(ctx, email, password)
	if err != nil {
		return nil, translate(op, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	token, err := s.tokens.Issue(jwt.Session{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
	})
	if err != nil {
		return nil, translate(op, err)
	}

	now := s.now().UTC()
	if _, err := s.logins.UpdateFields(ctx, user.ID, models.UserPatch{LatestLogin: &now}); err != nil {
		s.log.Warn("failed to record latest login",
			slog.String("op", op), slog.String("user_id", user.ID), sl.Err(err))
	} else if s.cache != nil {
		if err := s.cache.Invalidate(ctx, cache.UserKey(user.ID)); err != nil {
			s.log.Warn("cache invalidation failed",
				slog.String("op", op), slog.String("user_id", user.ID), sl.Err(err))
		}
	}

	return &LoginResult{User: user.Summary(), Token: token}, nil
}

// Register регистрирует пользователя.
func (s *Service) Register(ctx context.Context, name, email, password string) (*account.RegisterResult, error) {
	const op = "auth.Register"
	res, err := s.accounts.Register(ctx, name, email, password)
	if err != nil {
		return nil, translate(op, err)
	}
	return res, nil
}

// VerifyCode активирует аккаунт по коду.
func (s *Service) VerifyCode(ctx context.Context, id, code string) error {
	const op = "auth.VerifyCode"
	if id == "" || code == "" {
		return fmt.Errorf("%s: %w: id and code are required", op, account.ErrValidation)
	}
	if err := s.accounts.Activate(ctx, id, code); err != nil {
		return translate(op, err)
	}
	return nil
}

// RetryCode выдаёт новый код активации.
func (s *Service) RetryCode(ctx context.Context, email string) (*account.RetryResult, error) {
	const op = "auth.RetryCode"
	res, err := s.accounts.RetryActivation(ctx, email)
	if err != nil {
		return nil, translate(op, err)
	}
	return res, nil
}

// Profile проверяет токен и возвращает его данные.
func (s *Service) Profile(_ context.Context, token string) (*jwt.CustomClaims, error) {
	const op = "auth.Profile"
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, translate(op, err)
	}
	return claims, nil
}

func translate(op string, err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
