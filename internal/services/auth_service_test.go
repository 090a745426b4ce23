package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"todo-system/internal/repository"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func testAuthConfig() AuthConfig {
	return AuthConfig{
		EmailPasswordEnabled: true,
		TrustedOrigins:       []string{"http://localhost:3001"},
		JWTSecret:            []byte("test-secret"),
		Issuer:               "todo-system",
		Audience:             "todo-system-clients",
		AccessTTL:            time.Hour,
		RefreshTTL:           24 * time.Hour,
	}
}

func newTestAuthService(t *testing.T, cfg AuthConfig) *AuthService {
	t.Helper()
	users := repository.NewUserRepository(openTestDB(t))
	return NewAuthService(users, NewBcryptHasher(bcrypt.MinCost), cfg, logger.NewNop())
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc := newTestAuthService(t, testAuthConfig())
	ctx := context.Background()

	tests := []struct {
		name      string
		input     RegisterInput
		wantField string
	}{
		{"missing email", RegisterInput{Password: "Secret1!", DisplayName: "Ann"}, "email"},
		{"bad email", RegisterInput{Email: "not-an-email", Password: "Secret1!", DisplayName: "Ann"}, "email"},
		{"short password", RegisterInput{Email: "a@example.com", Password: "S1!a", DisplayName: "Ann"}, "password"},
		{"no uppercase", RegisterInput{Email: "a@example.com", Password: "secret1!", DisplayName: "Ann"}, "password"},
		{"no digit", RegisterInput{Email: "a@example.com", Password: "Secret!!", DisplayName: "Ann"}, "password"},
		{"no special", RegisterInput{Email: "a@example.com", Password: "Secret11", DisplayName: "Ann"}, "password"},
		{"missing display name", RegisterInput{Email: "a@example.com", Password: "Secret1!"}, "displayName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.input)
			var verr *todo_errors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Register() error = %v, want ValidationError", err)
			}
			if len(verr.Fields[tt.wantField]) == 0 {
				t.Errorf("Register() fields = %v, want an error on %q", verr.Fields, tt.wantField)
			}
		})
	}
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	svc := newTestAuthService(t, testAuthConfig())
	ctx := context.Background()
	in := RegisterInput{Email: "ann@example.com", Password: "Secret1!", DisplayName: "Ann"}

	res, err := svc.Register(ctx, in)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.Email != "ann@example.com" || res.UserID == "" {
		t.Errorf("Register() = %+v", res)
	}

	in.Email = "ANN@example.com"
	if _, err := svc.Register(ctx, in); !errors.Is(err, todo_errors.ErrAlreadyExists) {
		t.Errorf("duplicate Register() error = %v, want ErrAlreadyExists", err)
	}
}

func TestAuthService_LoginAndParse(t *testing.T) {
	svc := newTestAuthService(t, testAuthConfig())
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "Secret1!", DisplayName: "Bob"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := svc.Login(ctx, LoginInput{Email: "bob@example.com", Password: "wrong"}); !errors.Is(err, todo_errors.ErrUnauthorized) {
		t.Errorf("Login() wrong password error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "Secret1!"}); !errors.Is(err, todo_errors.ErrUnauthorized) {
		t.Errorf("Login() unknown user error = %v, want ErrUnauthorized", err)
	}

	res, err := svc.Login(ctx, LoginInput{Email: "bob@example.com", Password: "Secret1!"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Token == "" || res.RefreshToken == "" {
		t.Fatal("Login() returned empty tokens")
	}

	claims, err := svc.ParseAccessToken(res.Token)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.Subject != reg.UserID || claims.Email != "bob@example.com" || claims.Name != "Bob" {
		t.Errorf("claims = %+v", claims)
	}

	other := testAuthConfig()
	other.Audience = "someone-else"
	foreign := NewAuthService(nil, nil, other, logger.NewNop())
	if _, err := foreign.ParseAccessToken(res.Token); !errors.Is(err, todo_errors.ErrUnauthorized) {
		t.Errorf("ParseAccessToken() with wrong audience error = %v", err)
	}
}

func TestAuthService_ParseRejectsTamperedTokens(t *testing.T) {
	cfg := testAuthConfig()
	svc := NewAuthService(nil, nil, cfg, logger.NewNop())

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, _ := expired.SignedString(cfg.JWTSecret)

	wrongKey := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	wrongKeyToken, _ := wrongKey.SignedString([]byte("other-secret"))

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "abc.def.ghi",
		"expired":   expiredToken,
		"wrong key": wrongKeyToken,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.ParseAccessToken(token); !errors.Is(err, todo_errors.ErrUnauthorized) {
				t.Errorf("ParseAccessToken() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestAuthService_RefreshRotates(t *testing.T) {
	svc := newTestAuthService(t, testAuthConfig())
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "cy@example.com", Password: "Secret1!", DisplayName: "Cy"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	first, err := svc.Login(ctx, LoginInput{Email: "cy@example.com", Password: "Secret1!"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	second, err := svc.Refresh(ctx, RefreshInput{Email: "cy@example.com", RefreshToken: first.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("Refresh() did not rotate the refresh token")
	}

	if _, err := svc.Refresh(ctx, RefreshInput{Email: "cy@example.com", RefreshToken: first.RefreshToken}); !errors.Is(err, todo_errors.ErrUnauthorized) {
		t.Errorf("reused refresh token error = %v, want ErrUnauthorized", err)
	}

	svc.clock = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if _, err := svc.Refresh(ctx, RefreshInput{Email: "cy@example.com", RefreshToken: second.RefreshToken}); !errors.Is(err, todo_errors.ErrUnauthorized) {
		t.Errorf("expired refresh token error = %v, want ErrUnauthorized", err)
	}
}

func TestAuthService_EmailPasswordDisabled(t *testing.T) {
	cfg := testAuthConfig()
	cfg.EmailPasswordEnabled = false
	svc := newTestAuthService(t, cfg)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "d@example.com", Password: "Secret1!", DisplayName: "D"}); !errors.Is(err, todo_errors.ErrForbidden) {
		t.Errorf("Register() error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "d@example.com", Password: "Secret1!"}); !errors.Is(err, todo_errors.ErrForbidden) {
		t.Errorf("Login() error = %v, want ErrForbidden", err)
	}
}

func TestUserContext(t *testing.T) {
	id := uuid.New()
	ctx := WithUserContext(context.Background(), id, "admin")

	got, ok := UserIDFromContext(ctx)
	if !ok || got != id {
		t.Errorf("UserIDFromContext() = %v, %v", got, ok)
	}
	if role := UserRoleFromContext(ctx); role != "admin" {
		t.Errorf("UserRoleFromContext() = %q", role)
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Error("UserIDFromContext() on empty ctx reported a user")
	}
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	svc := newTestAuthService(t, testAuthConfig())
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "boss@example.com", Password: "Secret1!", DisplayName: "Boss"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	info, created, err := svc.EnsureAdmin(ctx, RegisterInput{Email: "Boss@Example.com", Password: "Admin@123!", DisplayName: "Boss"})
	if err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}
	if created || info.Role != "admin" {
		t.Errorf("EnsureAdmin() = %+v created=%v, want promoted existing user", info, created)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "boss@example.com", Password: "Admin@123!"}); err != nil {
		t.Errorf("Login() with reset password error = %v", err)
	}

	_, created, err = svc.EnsureAdmin(ctx, RegisterInput{Email: "root@example.com", Password: "Admin@123!", DisplayName: "Root"})
	if err != nil || !created {
		t.Errorf("EnsureAdmin() new user created=%v err=%v", created, err)
	}

	if _, _, err := svc.EnsureAdmin(ctx, RegisterInput{Email: "x@example.com", Password: "weak", DisplayName: "X"}); !errors.Is(err, todo_errors.ErrInvalidInput) {
		t.Errorf("EnsureAdmin() weak password error = %v, want ErrInvalidInput", err)
	}
}
