package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"todo-system/internal/domain/user"
	todo_errors "todo-system/pkg/errors"
)

func TestUserRepository_CreateAndLookup(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	u := &user.User{
		Email:        "  Jane.Doe@Example.com ",
		DisplayName:  "Jane",
		PasswordHash: "hash",
	}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.Email != "jane.doe@example.com" {
		t.Errorf("Create() email = %q, want normalized address", u.Email)
	}
	if u.Role != user.RoleUser {
		t.Errorf("Create() role = %q, want %q", u.Role, user.RoleUser)
	}

	got, err := repo.GetByEmail(ctx, "JANE.DOE@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("GetByEmail() id = %s, want %s", got.ID, u.ID)
	}
	if got.RefreshTokenHash.Valid {
		t.Error("new user should not have a refresh token")
	}

	exists, err := repo.EmailExists(ctx, "jane.doe@example.com")
	if err != nil || !exists {
		t.Errorf("EmailExists() = %v, %v; want true, nil", exists, err)
	}
	exists, err = repo.EmailExists(ctx, "nobody@example.com")
	if err != nil || exists {
		t.Errorf("EmailExists() = %v, %v; want false, nil", exists, err)
	}

	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, todo_errors.ErrNotFound) {
		t.Errorf("GetByEmail() error = %v, want ErrNotFound", err)
	}
}

func TestUserRepository_SetRefreshToken(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	u := &user.User{Email: "a@example.com", DisplayName: "A", PasswordHash: "hash"}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	expires := time.Now().Add(time.Hour).UTC()
	if err := repo.SetRefreshToken(ctx, u.ID, "token-hash", expires); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	got, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.RefreshTokenHash.String != "token-hash" {
		t.Errorf("refresh hash = %q, want token-hash", got.RefreshTokenHash.String)
	}
	if !got.RefreshTokenExpiresAt.Valid || got.RefreshTokenExpiresAt.Time.Sub(expires).Abs() > time.Second {
		t.Errorf("refresh expiry = %v, want about %v", got.RefreshTokenExpiresAt, expires)
	}
}
