package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"todo-system/config"
	"todo-system/internal/handler"
	"todo-system/internal/metrics"
	"todo-system/internal/middleware"
	"todo-system/internal/redis"
	"todo-system/internal/transport/httpdto"
	"todo-system/internal/websocket"
	"todo-system/pkg/database"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Auth          *handler.AuthHandler
	Todos         *handler.TodoHandler
	ExternalTodos *handler.ExternalTodoHandler
	Export        *handler.ExportHandler
	WebSocket     *websocket.Handler
}

// Dependencies are the shared components the middleware chain needs.
// Limiter and Metrics may be nil.
type Dependencies struct {
	Auth    middleware.TokenParser
	Limiter *redis.RateLimiter
	Metrics *metrics.Metrics
	// Health overrides the database ping used by /health.
	Health func(ctx context.Context) error
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	switch cfg.AppMode {
	case ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(l))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(h *Handlers, deps Dependencies) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.TracingMiddleware(nil))
	s.engine.Use(middleware.CORSMiddleware(s.config.AuthTrustedOrigins))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.MetricsMiddleware(deps.Metrics))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	health := deps.Health
	if health == nil {
		health = database.HealthCheck
	}

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	limit := func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		limit = middleware.RateLimitMiddleware(deps.Limiter, s.logger)
	}
	authenticated := middleware.AuthMiddleware(deps.Auth)

	v1 := s.engine.Group("/api/v1")

	auth := v1.Group("/auth", limit)
	{
		auth.GET("/config", h.Auth.Config)
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.GET("/me", authenticated, h.Auth.Me)
		auth.GET("/users/:email", authenticated, h.Auth.UserByEmail)
	}

	todos := v1.Group("/todos", authenticated, limit)
	{
		todos.GET("", h.Todos.List)
		todos.POST("", h.Todos.Create)
		if h.Export != nil {
			todos.POST("/export", h.Export.Export)
		}
		todos.GET("/:id", h.Todos.Get)
		todos.PUT("/:id", h.Todos.Update)
		todos.DELETE("/:id", h.Todos.Delete)
	}

	external := v1.Group("/external-todos", authenticated, limit)
	{
		external.GET("", h.ExternalTodos.List)
		external.POST("", h.ExternalTodos.Create)
		external.GET("/:id", h.ExternalTodos.Get)
		external.PUT("/:id", h.ExternalTodos.Update)
		external.DELETE("/:id", h.ExternalTodos.Delete)
	}

	if h.WebSocket != nil {
		// browsers cannot set headers on the upgrade, so the handler checks
		// the token itself
		v1.GET("/ws", h.WebSocket.Connect)
	}
}

// Start serves until ctx is cancelled and then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.logger.Errorf("Error in starting the server: %s", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Infof("Shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}
