// Package account реализует жизненный цикл учётной записи: регистрацию с кодом
// активации, активацию, повторную выдачу кода и проверку учётных данных.
//
// Аккаунт создаётся в состоянии ожидания (is_active=false, код и срок заданы)
// и переходит в активное состояние один раз. Обратного перехода нет.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/account-service/internal/cache"
	"github.com/magabrotheeeer/account-service/internal/lib/activation"
	"github.com/magabrotheeeer/account-service/internal/lib/password"
	"github.com/magabrotheeeer/account-service/internal/lib/sl"
	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/storage"
)

// DefaultCodeTTL время жизни кода активации по умолчанию.
const DefaultCodeTTL = 5 * time.Minute

// UserStore контракт хранилища, нужный менеджеру.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIDAndCode(ctx context.Context, id, code string) (*models.User, error)
	Insert(ctx context.Context, user models.User) (*models.User, error)
	UpdateFields(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
}

// Notifier отправляет письмо с кодом активации.
type Notifier interface {
	SendActivationEmail(ctx context.Context, to, name, code string) error
}

// Invalidator удаляет закэшированную запись пользователя после изменения.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Recorder получает события жизненного цикла для метрик.
type Recorder interface {
	Registered()
	Activated()
	ActivationFailed(reason string)
	CodeReissued()
	NotificationFailed()
}

type nopRecorder struct{}

func (nopRecorder) Registered()             {}
func (nopRecorder) Activated()              {}
func (nopRecorder) ActivationFailed(string) {}
func (nopRecorder) CodeReissued()           {}
func (nopRecorder) NotificationFailed()     {}

// RegisterResult созданный пользователь и результат отправки письма.
type RegisterResult struct {
	User *models.User
	// NotifyErr ошибка отправки письма. Пользователь при этом уже сохранён.
	NotifyErr error
}

// RetryResult результат повторной выдачи кода.
type RetryResult struct {
	ID        string
	NotifyErr error
}

// Manager управляет переходами состояний учётной записи.
type Manager struct {
	store    UserStore
	notifier Notifier
	log      *slog.Logger
	recorder Recorder
	cache    Invalidator
	now      func() time.Time
	codeTTL  time.Duration
}

// Option настраивает Manager.
type Option func(*Manager)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCodeTTL задаёт время жизни кода активации.
func WithCodeTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.codeTTL = ttl
		}
	}
}

// WithRecorder подключает сбор метрик.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithInvalidator сбрасывает кэш пользователя после активации и выдачи кода.
func WithInvalidator(c Invalidator) Option {
	return func(m *Manager) { m.cache = c }
}

// NewManager создаёт менеджер жизненного цикла.
func NewManager(store UserStore, notifier Notifier, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		notifier: notifier,
		log:      log,
		recorder: nopRecorder{},
		now:      time.Now,
		codeTTL:  DefaultCodeTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register создаёт ожидающую активации учётную запись и отправляет код на email.
func (m *Manager) Register(ctx context.Context, name, email, plain string) (*RegisterResult, error) {
	const op = "account.Register"
	log := m.log.With(slog.String("op", op))

	email = models.NormalizeEmail(email)
	if !validEmail(email) {
		return nil, fmt.Errorf("%s: %w: invalid email", op, ErrValidation)
	}

	_, err := m.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = localPart(email)
	}

	hash, err := password.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidInput) {
			return nil, fmt.Errorf("%s: %w: password must be %d to %d bytes long", op, ErrValidation, password.MinLength, password.MaxLength)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	code := activation.Generate()
	expiry := m.now().Add(m.codeTTL)
	user, err := m.store.Insert(ctx, models.User{
		Name:             name,
		Email:            email,
		PasswordHash:     hash,
		IsActive:         false,
		ActiveCode:       &code,
		ActiveCodeExpiry: &expiry,
		Role:             models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.recorder.Registered()
	log.Info("user registered", slog.String("user_id", user.ID))

	return &RegisterResult{
		User:      user,
		NotifyErr: m.notify(ctx, log, user.Email, user.Name, code),
	}, nil
}

// Activate переводит аккаунт в активное состояние, если код совпадает и не истёк.
//
// Неверный id и неверный код неразличимы для вызывающего: оба дают ErrInvalidCode.
func (m *Manager) Activate(ctx context.Context, id, code string) error {
	const op = "account.Activate"
	log := m.log.With(slog.String("op", op), slog.String("user_id", id))

	user, err := m.store.FindByIDAndCode(ctx, id, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.recorder.ActivationFailed("invalid_code")
			return fmt.Errorf("%s: %w", op, ErrInvalidCode)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	now := m.now()
	if user.ActiveCodeExpiry == nil || !now.Before(*user.ActiveCodeExpiry) {
		m.recorder.ActivationFailed("expired")
		return fmt.Errorf("%s: %w", op, ErrCodeExpired)
	}

	active := true
	_, err = m.store.UpdateFields(ctx, id, models.UserPatch{
		IsActive:        &active,
		ClearActiveCode: true,
		IfActiveCode:    &code,
		IfCodeValidAt:   &now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// код успели заменить или использовать между чтением и записью
			m.recorder.ActivationFailed("invalid_code")
			return fmt.Errorf("%s: %w", op, ErrInvalidCode)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	m.invalidate(ctx, log, id)
	m.recorder.Activated()
	log.Info("account activated")
	return nil
}

// RetryActivation выдаёт новый код взамен старого и отправляет его повторно.
// Доступно только для аккаунтов, ожидающих активации.
func (m *Manager) RetryActivation(ctx context.Context, email string) (*RetryResult, error) {
	const op = "account.RetryActivation"
	log := m.log.With(slog.String("op", op))

	user, err := m.store.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadyActive)
	}

	code := activation.Generate()
	expiry := m.now().Add(m.codeTTL)
	updated, err := m.store.UpdateFields(ctx, user.ID, models.UserPatch{
		ActiveCode:       &code,
		ActiveCodeExpiry: &expiry,
		IfPending:        true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// аккаунт активировали или удалили после чтения
			return nil, fmt.Errorf("%s: %w", op, ErrAlreadyActive)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.invalidate(ctx, log, updated.ID)
	m.recorder.CodeReissued()
	log.Info("activation code reissued", slog.String("user_id", updated.ID))

	return &RetryResult{
		ID:        updated.ID,
		NotifyErr: m.notify(ctx, log, updated.Email, updated.Name, code),
	}, nil
}

// ValidateCredentials возвращает пользователя при совпадении пароля.
// Отсутствие пользователя и неверный пароль дают nil без ошибки.
func (m *Manager) ValidateCredentials(ctx context.Context, email, plain string) (*models.User, error) {
	const op = "account.ValidateCredentials"

	user, err := m.store.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := password.Verify(plain, user.PasswordHash)
	if err != nil || !ok {
		return nil, nil
	}
	return user, nil
}

func (m *Manager) notify(ctx context.Context, log *slog.Logger, to, name, code string) error {
	if err := m.notifier.SendActivationEmail(ctx, to, name, code); err != nil {
		m.recorder.NotificationFailed()
		log.Error("failed to send activation email", sl.Err(err))
		return err
	}
	return nil
}

func (m *Manager) invalidate(ctx context.Context, log *slog.Logger, id string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, cache.UserKey(id)); err != nil {
		log.Warn("cache invalidation failed", slog.String("user_id", id), sl.Err(err))
	}
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
