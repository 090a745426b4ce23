package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"todo-system/internal/domain/user"
	todo_errors "todo-system/pkg/errors"

	"github.com/google/uuid"
)

const userColumns = "id, email, display_name, password_hash, role, refresh_token_hash, refresh_token_expires_at, created_at, updated_at"

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *user.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = user.RoleUser
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO users (id, email, display_name, password_hash, role, refresh_token_hash, refresh_token_expires_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `,
		u.ID,
		u.Email,
		u.DisplayName,
		u.PasswordHash,
		u.Role,
		u.RefreshTokenHash,
		u.RefreshTokenExpiresAt,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return todo_errors.ErrAlreadyExists
	}
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (user.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", normalizeEmail(email))
	return scanUser(row)
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = $1", normalizeEmail(email)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepository) Update(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
        UPDATE users
        SET display_name = $1, password_hash = $2, role = $3, updated_at = $4
        WHERE id = $5
    `, u.DisplayName, u.PasswordHash, u.Role, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *userRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE users
        SET refresh_token_hash = $1, refresh_token_expires_at = $2, updated_at = $3
        WHERE id = $4
    `, hash, expiresAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanUser(row rowScanner) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.Role,
		&u.RefreshTokenHash,
		&u.RefreshTokenExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, todo_errors.ErrNotFound
	}
	return u, err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return todo_errors.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
