package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	MaxDisplayNameLength = 100
)

// User represents the users table
type User struct {
	ID                    uuid.UUID
	Email                 string
	DisplayName           string
	PasswordHash          string
	Role                  string
	RefreshTokenHash      sql.NullString
	RefreshTokenExpiresAt sql.NullTime
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
