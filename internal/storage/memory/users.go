// Package memory реализует потокобезопасное in-memory хранилище пользователей.
// Используется в локальном окружении без PostgreSQL и в тестах.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/storage"
)

// Storage хранит пользователей в памяти процесса.
type Storage struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
	now     func() time.Time
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func clone(u *models.User) *models.User {
	c := *u
	if u.ActiveCode != nil {
		code := *u.ActiveCode
		c.ActiveCode = &code
	}
	if u.ActiveCodeExpiry != nil {
		exp := *u.ActiveCodeExpiry
		c.ActiveCodeExpiry = &exp
	}
	if u.LatestLogin != nil {
		ll := *u.LatestLogin
		c.LatestLogin = &ll
	}
	return &c
}

// Insert сохраняет нового пользователя.
func (s *Storage) Insert(ctx context.Context, user models.User) (*models.User, error) {
	const op = "storage.memory.Insert"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := models.NormalizeEmail(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}
	now := s.now().UTC()
	u := clone(&user)
	u.ID = uuid.NewString()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return clone(u), nil
}

// FindByEmail возвращает пользователя по email без учёта регистра.
func (s *Storage) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.memory.FindByEmail"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return clone(s.byID[id]), nil
}

// FindByID возвращает пользователя по ID.
func (s *Storage) FindByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.memory.FindByID"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return clone(u), nil
}

// FindByIDAndCode возвращает пользователя, только если его текущий код совпадает.
func (s *Storage) FindByIDAndCode(ctx context.Context, id, code string) (*models.User, error) {
	const op = "storage.memory.FindByIDAndCode"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok || u.ActiveCode == nil || *u.ActiveCode != code {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return clone(u), nil
}

func matches(u *models.User, patch models.UserPatch) bool {
	if patch.IfActiveCode != nil && (u.ActiveCode == nil || *u.ActiveCode != *patch.IfActiveCode) {
		return false
	}
	if patch.IfCodeValidAt != nil && (u.ActiveCodeExpiry == nil || !patch.IfCodeValidAt.Before(*u.ActiveCodeExpiry)) {
		return false
	}
	if patch.IfPending && u.IsActive {
		return false
	}
	return true
}

// UpdateFields атомарно проверяет условия патча и применяет его.
func (s *Storage) UpdateFields(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	const op = "storage.memory.UpdateFields"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok || !matches(current, patch) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u := clone(current)
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if patch.LatestLogin != nil {
		ll := *patch.LatestLogin
		u.LatestLogin = &ll
	}
	switch {
	case patch.ClearActiveCode:
		u.ActiveCode = nil
		u.ActiveCodeExpiry = nil
	case patch.ActiveCode != nil:
		code := *patch.ActiveCode
		u.ActiveCode = &code
		if patch.ActiveCodeExpiry != nil {
			exp := *patch.ActiveCodeExpiry
			u.ActiveCodeExpiry = &exp
		}
	}
	u.UpdatedAt = s.now().UTC()

	s.byID[id] = u
	return clone(u), nil
}

// Delete удаляет пользователя по ID.
func (s *Storage) Delete(ctx context.Context, id string) error {
	const op = "storage.memory.Delete"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.byEmail, u.Email)
	delete(s.byID, id)
	return nil
}

// List возвращает страницу пользователей, отсортированных по дате создания.
func (s *Storage) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	const op = "storage.memory.List"
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	email := strings.ToLower(filter.Email)
	name := strings.ToLower(filter.Name)
	var all []*models.User
	for _, u := range s.byID {
		if email != "" && !strings.Contains(u.Email, email) {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(u.Name), name) {
			continue
		}
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	page := make([]*models.User, 0, end-start)
	for _, u := range all[start:end] {
		page = append(page, clone(u))
	}
	return page, total, nil
}
