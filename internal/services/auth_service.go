package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"todo-system/config"
	"todo-system/internal/domain/user"
	"todo-system/internal/repository"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEmailTaken = fmt.Errorf("%w: a user with this email already exists", todo_errors.ErrAlreadyExists)

// AuthConfig holds the login settings: which methods are enabled, which
// browser origins may call the API, and how tokens are minted.
type AuthConfig struct {
	EmailPasswordEnabled bool
	TrustedOrigins       []string
	JWTSecret            []byte
	Issuer               string
	Audience             string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
}

func NewAuthConfig(cfg *config.Config) AuthConfig {
	return AuthConfig{
		EmailPasswordEnabled: cfg.AuthEmailPasswordEnabled,
		TrustedOrigins:       cfg.AuthTrustedOrigins,
		JWTSecret:            []byte(cfg.JWTSecret),
		Issuer:               cfg.JWTIssuer,
		Audience:             cfg.JWTAudience,
		AccessTTL:            cfg.AccessTTL(),
		RefreshTTL:           cfg.RefreshTTL(),
	}
}

type AuthService struct {
	users  repository.UserRepository
	hasher PasswordHasher
	cfg    AuthConfig
	clock  func() time.Time
	logger *logger.Logger
}

func NewAuthService(users repository.UserRepository, hasher PasswordHasher, cfg AuthConfig, l *logger.Logger) *AuthService {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &AuthService{
		users:  users,
		hasher: hasher,
		cfg:    cfg,
		clock:  time.Now,
		logger: l,
	}
}

func (s *AuthService) Config() AuthConfig {
	return s.cfg
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type RegisterResult struct {
	UserID  string
	Email   string
	Message string
}

type LoginInput struct {
	Email    string
	Password string
}

type RefreshInput struct {
	Email        string
	RefreshToken string
}

type LoginResult struct {
	Token        string
	RefreshToken string
	Email        string
	DisplayName  string
	Expiration   time.Time
}

type UserInfo struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

type AccessClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if !s.cfg.EmailPasswordEnabled {
		return RegisterResult{}, todo_errors.ErrForbidden
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validateRegister(in); err != nil {
		return RegisterResult{}, err
	}

	exists, err := s.users.EmailExists(ctx, in.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	if exists {
		return RegisterResult{}, ErrEmailTaken
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	newUser := &user.User{
		ID:           uuid.New(),
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: hash,
		Role:         user.RoleUser,
	}
	if err := s.users.Create(ctx, newUser); err != nil {
		if errors.Is(err, todo_errors.ErrAlreadyExists) {
			return RegisterResult{}, ErrEmailTaken
		}
		return RegisterResult{}, err
	}

	s.logger.Info(ctx, "user registered", zap.String("user_id", newUser.ID.String()))
	return RegisterResult{
		UserID:  newUser.ID.String(),
		Email:   newUser.Email,
		Message: "Registration successful",
	}, nil
}

// EnsureAdmin creates an admin account, or promotes and resets the password
// of an existing account with the same email. Password rules still apply.
func (s *AuthService) EnsureAdmin(ctx context.Context, in RegisterInput) (UserInfo, bool, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validateRegister(in); err != nil {
		return UserInfo{}, false, err
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return UserInfo{}, false, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		existing.Role = user.RoleAdmin
		existing.PasswordHash = hash
		if err := s.users.Update(ctx, &existing); err != nil {
			return UserInfo{}, false, err
		}
		return toUserInfo(existing), false, nil
	case !errors.Is(err, todo_errors.ErrNotFound):
		return UserInfo{}, false, err
	}

	admin := &user.User{
		ID:           uuid.New(),
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return UserInfo{}, false, err
	}
	s.logger.Info(ctx, "admin user created", zap.String("user_id", admin.ID.String()))
	return toUserInfo(*admin), true, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if !s.cfg.EmailPasswordEnabled {
		return LoginResult{}, todo_errors.ErrForbidden
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return LoginResult{}, todo_errors.ErrInvalidInput
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, todo_errors.ErrNotFound) {
			return LoginResult{}, todo_errors.ErrUnauthorized
		}
		return LoginResult{}, err
	}

	if !s.hasher.VerifyPassword(in.Password, u.PasswordHash) {
		s.logger.Warn(ctx, "failed login attempt", zap.String("user_id", u.ID.String()))
		return LoginResult{}, todo_errors.ErrUnauthorized
	}

	return s.issueTokens(ctx, u)
}

// Refresh exchanges a valid refresh token for a new token pair. The old
// refresh token stops working.
func (s *AuthService) Refresh(ctx context.Context, in RefreshInput) (LoginResult, error) {
	if in.Email == "" || in.RefreshToken == "" {
		return LoginResult{}, todo_errors.ErrInvalidInput
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, todo_errors.ErrNotFound) {
			return LoginResult{}, todo_errors.ErrUnauthorized
		}
		return LoginResult{}, err
	}

	if !u.RefreshTokenHash.Valid || !u.RefreshTokenExpiresAt.Valid {
		return LoginResult{}, todo_errors.ErrUnauthorized
	}
	if s.clock().After(u.RefreshTokenExpiresAt.Time) {
		return LoginResult{}, todo_errors.ErrUnauthorized
	}
	if !compareRefreshToken(u.RefreshTokenHash.String, in.RefreshToken) {
		return LoginResult{}, todo_errors.ErrUnauthorized
	}

	return s.issueTokens(ctx, u)
}

func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (UserInfo, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return UserInfo{}, err
	}
	return toUserInfo(u), nil
}

// GetUserByEmail is limited to the caller's own account unless the caller
// is an admin.
func (s *AuthService) GetUserByEmail(ctx context.Context, email string) (UserInfo, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return UserInfo{}, err
	}
	callerID, _ := UserIDFromContext(ctx)
	if u.ID != callerID && UserRoleFromContext(ctx) != user.RoleAdmin {
		return UserInfo{}, todo_errors.ErrNotFound
	}
	return toUserInfo(u), nil
}

func toUserInfo(u user.User) UserInfo {
	return UserInfo{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, todo_errors.ErrUnauthorized
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.cfg.JWTSecret, nil
	}, opts...)
	if err != nil {
		return AccessClaims{}, todo_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, todo_errors.ErrUnauthorized
	}

	return *claims, nil
}

func (s *AuthService) issueTokens(ctx context.Context, u user.User) (LoginResult, error) {
	token, expiresAt, err := s.newAccessToken(u)
	if err != nil {
		return LoginResult{}, err
	}

	refreshToken, err := generateToken(32)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.users.SetRefreshToken(ctx, u.ID, hashRefreshToken(refreshToken), s.clock().Add(s.cfg.RefreshTTL)); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Token:        token,
		RefreshToken: refreshToken,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		Expiration:   expiresAt,
	}, nil
}

func (s *AuthService) newAccessToken(u user.User) (string, time.Time, error) {
	now := s.clock()
	expiresAt := now.Add(s.cfg.AccessTTL)

	claims := AccessClaims{
		Email: u.Email,
		Name:  u.DisplayName,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID.String(),
			Issuer:    s.cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.JWTSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.UTC(), nil
}

type ctxKey string

var userIDKey ctxKey = "user_id"
var userRoleKey ctxKey = "user_role"

// WithUserContext stores the authenticated user on ctx, including the
// string form the logger reads.
func WithUserContext(ctx context.Context, userID uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, userRoleKey, role)
	return context.WithValue(ctx, logger.UserIdKey, userID.String())
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

func UserRoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(userRoleKey).(string)
	return role
}

func validateRegister(in RegisterInput) error {
	verr := todo_errors.NewValidationError()

	if in.Email == "" {
		verr.Add("email", "Email is required.")
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		verr.Add("email", "A valid email address is required.")
	}

	if in.Password == "" {
		verr.Add("password", "Password is required.")
	} else {
		if utf8.RuneCountInString(in.Password) < 6 {
			verr.Add("password", "Password must be at least 6 characters long.")
		}
		var upper, digit, special bool
		for _, r := range in.Password {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsDigit(r):
				digit = true
			case !unicode.IsLetter(r) && !unicode.IsNumber(r):
				special = true
			}
		}
		if !upper {
			verr.Add("password", "Password must contain at least one uppercase letter.")
		}
		if !digit {
			verr.Add("password", "Password must contain at least one number.")
		}
		if !special {
			verr.Add("password", "Password must contain at least one special character.")
		}
	}

	if in.DisplayName == "" {
		verr.Add("displayName", "Display name is required.")
	} else if utf8.RuneCountInString(in.DisplayName) > user.MaxDisplayNameLength {
		verr.Add("displayName", "Display name must not exceed 100 characters.")
	}

	return verr.OrNil()
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func compareRefreshToken(hash, token string) bool {
	computed := hashRefreshToken(token)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(computed)) == 1
}
