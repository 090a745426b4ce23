// Package handler provides HTTP handlers for API endpoints.
package handler

import (
	"net/http"
	"net/url"

	"todo-system/internal/services"
	"todo-system/internal/transport/httpdto"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	service *services.AuthService
	logger  *logger.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(service *services.AuthService, l *logger.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: l}
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req httpdto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	res, err := h.service.Register(c.Request.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Header("Location", "/api/v1/auth/users/"+url.PathEscape(res.Email))
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.RegisterResponse{
		UserID:  res.UserID,
		Email:   res.Email,
		Message: res.Message,
	}))
}

// Login handles user authentication.
func (h *AuthHandler) Login(c *gin.Context) {
	var req httpdto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toLoginResponse(res)))
}

// Refresh handles token refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req httpdto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	res, err := h.service.Refresh(c.Request.Context(), services.RefreshInput{
		Email:        req.Email,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toLoginResponse(res)))
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	info, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toUserResponse(info)))
}

// UserByEmail serves the Location returned by Register.
func (h *AuthHandler) UserByEmail(c *gin.Context) {
	info, err := h.service.GetUserByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toUserResponse(info)))
}

// Config exposes which sign-in methods are enabled.
func (h *AuthHandler) Config(c *gin.Context) {
	cfg := h.service.Config()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.AuthConfigResponse{
		EmailPasswordEnabled: cfg.EmailPasswordEnabled,
		TrustedOrigins:       cfg.TrustedOrigins,
	}))
}

func toLoginResponse(res services.LoginResult) httpdto.LoginResponse {
	return httpdto.LoginResponse{
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
		Email:        res.Email,
		DisplayName:  res.DisplayName,
		Expiration:   res.Expiration,
	}
}

func toUserResponse(info services.UserInfo) httpdto.UserResponse {
	return httpdto.UserResponse{
		ID:          info.ID,
		Email:       info.Email,
		DisplayName: info.DisplayName,
		Role:        info.Role,
		CreatedAt:   info.CreatedAt,
	}
}
