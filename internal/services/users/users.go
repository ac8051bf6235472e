// Package users реализует администрирование пользователей: создание, выборку,
// изменение и удаление. Чтение по ID кэшируется в Redis.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/account-service/internal/cache"
	"github.com/magabrotheeeer/account-service/internal/lib/password"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/services/account"
	"github.com/magabrotheeeer/account-service/internal/storage"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Store контракт хранилища для администрирования.
type Store interface {
	Insert(ctx context.Context, user models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateFields(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error)
}

// Cache кэш записей пользователей.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// CreateInput данные нового пользователя.
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// UpdateInput частичное изменение. Nil-поля не меняются.
type UpdateInput struct {
	Name     *string
	Password *string
	Role     *models.Role
	IsActive *bool
}

// ListInput параметры постраничной выборки.
type ListInput struct {
	Page  int
	Limit int
	Email string
	Name  string
}

// Page страница пользователей.
type Page struct {
	Users      []models.UserSummary `json:"users"`
	Total      int                  `json:"total"`
	TotalPages int                  `json:"total_pages"`
	Page       int                  `json:"page"`
}

// Service администрирование пользователей.
type Service struct {
	store    Store
	cache    Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// NewService создаёт сервис. cache может быть nil, тогда чтение идёт напрямую в хранилище.
func NewService(store Store, cache Cache, cacheTTL time.Duration, log *slog.Logger) *Service {
	return &Service{store: store, cache: cache, cacheTTL: cacheTTL, log: log}
}

// Create создаёт активного пользователя с заданной ролью.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	const op = "users.Create"

	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%s: %w: unknown role %q", op, account.ErrValidation, in.Role)
	}
	email := models.NormalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("%s: %w: email is required", op, account.ErrValidation)
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user, err := s.store.Insert(ctx, models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		Role:         in.Role,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, account.ErrDuplicateEmail)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user created", slog.String("op", op), slog.String("user_id", user.ID))
	return user, nil
}

// Get возвращает пользователя по ID.
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	const op = "users.Get"
	log := s.log.With(slog.String("op", op), slog.String("user_id", id))

	if s.cache != nil {
		var cached models.User
		found, err := s.cache.Get(ctx, cache.UserKey(id), &cached)
		if err != nil {
			log.Warn("cache read failed", sl.Err(err))
		} else if found {
			log.Debug("cache hit")
			return &cached, nil
		}
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, account.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.UserKey(id), user, s.cacheTTL); err != nil {
			log.Warn("cache write failed", sl.Err(err))
		}
	}
	return user, nil
}

// List возвращает страницу пользователей с фильтрами по email и имени.
func (s *Service) List(ctx context.Context, in ListInput) (*Page, error) {
	const op = "users.List"

	page := in.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := in.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	list, total, err := s.store.List(ctx, models.UserFilter{
		Email:  strings.TrimSpace(in.Email),
		Name:   strings.TrimSpace(in.Name),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	summaries := make([]models.UserSummary, 0, len(list))
	for _, u := range list {
		summaries = append(summaries, u.Summary())
	}
	return &Page{
		Users:      summaries,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
		Page:       page,
	}, nil
}

// Update применяет частичное изменение.
//
// Флаг is_active можно только включить: ручная активация очищает код.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.User, error) {
	const op = "users.Update"

	var patch models.UserPatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%s: %w: name must not be empty", op, account.ErrValidation)
		}
		patch.Name = &name
	}
	if in.Password != nil {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		patch.PasswordHash = &hash
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, fmt.Errorf("%s: %w: unknown role %q", op, account.ErrValidation, *in.Role)
		}
		patch.Role = in.Role
	}
	if in.IsActive != nil {
		if !*in.IsActive {
			return nil, fmt.Errorf("%s: %w: accounts cannot be deactivated", op, account.ErrValidation)
		}
		patch.IsActive = in.IsActive
		patch.ClearActiveCode = true
	}

	user, err := s.store.UpdateFields(ctx, id, patch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, account.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, op, id)
	return user, nil
}

// Delete удаляет пользователя.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "users.Delete"

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, account.ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, op, id)
	s.log.Info("user removed", slog.String("op", op), slog.String("user_id", id))
	return nil
}

func (s *Service) invalidate(ctx context.Context, op, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.UserKey(id)); err != nil {
		s.log.Warn("cache invalidation failed", slog.String("op", op), slog.String("user_id", id), sl.Err(err))
	}
}

func hashPassword(plain string) (string, error) {
	hash, err := password.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidInput) {
			return "", fmt.Errorf("%w: password must be %d to %d bytes long", account.ErrValidation, password.MinLength, password.MaxLength)
		}
		return "", err
	}
	return hash, nil
}
