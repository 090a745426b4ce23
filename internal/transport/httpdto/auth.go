package httpdto

import "time"

// RegisterRequest is used for POST /auth/register
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type RegisterResponse struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// LoginRequest is used for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by login and refresh.
type LoginResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Expiration   time.Time `json:"expiration"`
}

// RefreshRequest is used for POST /auth/refresh
type RefreshRequest struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

type AuthConfigResponse struct {
	EmailPasswordEnabled bool     `json:"emailPasswordEnabled"`
	TrustedOrigins       []string `json:"trustedOrigins"`
}
