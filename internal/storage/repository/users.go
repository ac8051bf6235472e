package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/account-service/internal/models"
	"github.com/magabrotheeeer/account-service/internal/storage"
)

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

const userColumns = `uid, name, email, password_hash, is_active, active_code,
			      active_code_expiry, role, latest_login, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u           models.User
		role        string
		activeCode  sql.NullString
		codeExpiry  sql.NullTime
		latestLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsActive,
		&activeCode, &codeExpiry, &role, &latestLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if activeCode.Valid {
		u.ActiveCode = &activeCode.String
	}
	if codeExpiry.Valid {
		u.ActiveCodeExpiry = &codeExpiry.Time
	}
	if latestLogin.Valid {
		u.LatestLogin = &latestLogin.Time
	}
	return &u, nil
}

// wrapNoRows переводит отсутствие строки и id, не являющийся UUID, в storage.ErrNotFound.
func wrapNoRows(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.Is(err, sql.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern шаблон ILIKE для поиска подстроки без спецсимволов LIKE.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// Insert сохраняет нового пользователя и возвращает запись с присвоенным ID.
func (s *Storage) Insert(ctx context.Context, user models.User) (*models.User, error) {
	const op = "storage.Insert"

	query := `INSERT INTO users (name, email, password_hash, is_active, active_code,
			      active_code_expiry, role)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING ` + userColumns
	row := s.DB.QueryRowContext(ctx, query,
		user.Name, models.NormalizeEmail(user.Email), user.PasswordHash, user.IsActive,
		user.ActiveCode, user.ActiveCodeExpiry, string(user.Role))
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// FindByEmail возвращает пользователя по email без учёта регистра.
func (s *Storage) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.FindByEmail"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
	if err != nil {
		return nil, wrapNoRows(op, err)
	}
	return u, nil
}

// FindByID возвращает пользователя по его UID.
func (s *Storage) FindByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.FindByID"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapNoRows(op, err)
	}
	return u, nil
}

// FindByIDAndCode возвращает пользователя, только если его текущий код активации совпадает.
func (s *Storage) FindByIDAndCode(ctx context.Context, id, code string) (*models.User, error) {
	const op = "storage.FindByIDAndCode"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE uid = $1 AND active_code = $2`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, id, code))
	if err != nil {
		return nil, wrapNoRows(op, err)
	}
	return u, nil
}

// UpdateFields применяет частичное обновление одним условным UPDATE.
//
// Если записи нет или условия патча не выполнены, возвращается storage.ErrNotFound.
func (s *Storage) UpdateFields(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	const op = "storage.UpdateFields"

	set := []string{"updated_at = NOW()"}
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Name != nil {
		set = append(set, "name = "+arg(*patch.Name))
	}
	if patch.PasswordHash != nil {
		set = append(set, "password_hash = "+arg(*patch.PasswordHash))
	}
	if patch.Role != nil {
		set = append(set, "role = "+arg(string(*patch.Role)))
	}
	if patch.IsActive != nil {
		set = append(set, "is_active = "+arg(*patch.IsActive))
	}
	if patch.LatestLogin != nil {
		set = append(set, "latest_login = "+arg(*patch.LatestLogin))
	}
	switch {
	case patch.ClearActiveCode:
		set = append(set, "active_code = NULL", "active_code_expiry = NULL")
	case patch.ActiveCode != nil:
		set = append(set, "active_code = "+arg(*patch.ActiveCode))
		if patch.ActiveCodeExpiry != nil {
			set = append(set, "active_code_expiry = "+arg(*patch.ActiveCodeExpiry))
		}
	}

	where := []string{"uid = $1"}
	if patch.IfActiveCode != nil {
		where = append(where, "active_code = "+arg(*patch.IfActiveCode))
	}
	if patch.IfCodeValidAt != nil {
		where = append(where, "active_code_expiry > "+arg(*patch.IfCodeValidAt))
	}
	if patch.IfPending {
		where = append(where, "is_active = false")
	}

	query := `UPDATE users
			  SET ` + strings.Join(set, ", ") + `
			  WHERE ` + strings.Join(where, " AND ") + `
			  RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrapNoRows(op, err)
	}
	return u, nil
}

// Delete удаляет пользователя по UID.
func (s *Storage) Delete(ctx context.Context, id string) error {
	const op = "storage.Delete"

	result, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE uid = $1`, id)
	if err != nil {
		return wrapNoRows(op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// List возвращает страницу пользователей и общее количество подходящих записей.
func (s *Storage) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	const op = "storage.List"

	var (
		where []string
		args  []any
	)
	if filter.Email != "" {
		args = append(args, containsPattern(filter.Email))
		where = append(where, fmt.Sprintf(`email ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if filter.Name != "" {
		args = append(args, containsPattern(filter.Name))
		where = append(where, fmt.Sprintf(`name ILIKE $%d ESCAPE '\'`, len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	// LIMIT NULL снимает ограничение.
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	pageArgs := append(append([]any{}, args...), limit, max(filter.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM users%s
			  ORDER BY created_at, uid
			  LIMIT $%d OFFSET $%d`, userColumns, cond, len(args)+1, len(args)+2)
	rows, err := s.DB.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return result, total, nil
}
