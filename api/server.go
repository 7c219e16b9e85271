// Package api provides the HTTP REST API for userbio
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/memtensor/userbio/pkg/config"
	"github.com/memtensor/userbio/pkg/interfaces"
	"github.com/memtensor/userbio/pkg/ratelimit"
	"github.com/memtensor/userbio/pkg/types"
	"github.com/memtensor/userbio/pkg/users"
)

// UserService is the user and role management surface the API serves
type UserService interface {
	CreateRole(ctx context.Context, params users.CreateRoleParams) (*users.Role, error)
	GetRole(ctx context.Context, id string) (*users.Role, error)
	ListRoles(ctx context.Context, page types.PageRequest) (*types.Page[users.Role], error)
	UpdateRole(ctx context.Context, id string, params users.UpdateRoleParams) (*users.Role, error)
	DeleteRole(ctx context.Context, id string) error

	CreateUser(ctx context.Context, params users.CreateUserParams) (*users.User, error)
	GetUser(ctx context.Context, id string) (*users.User, error)
	ListUsers(ctx context.Context, params users.ListUsersParams) (*types.Page[users.User], error)
	UpdateUser(ctx context.Context, id string, params users.UpdateUserParams) (*users.User, error)
	RegenerateBio(ctx context.Context, id string) (*users.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Option configures optional server collaborators
type Option func(*Server)

// WithRateLimiter limits /api requests per client IP
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithHealthCheckers adds dependencies reported by /health
func WithHealthCheckers(checks ...interfaces.HealthChecker) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// WithMetricsHandler serves the handler at the configured metrics path
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithVersion sets the version reported by /health
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server represents the API server instance
type Server struct {
	users          UserService
	bio            interfaces.BioService
	config         *config.Config
	logger         interfaces.Logger
	metrics        interfaces.Metrics
	limiter        ratelimit.Limiter
	checks         []interfaces.HealthChecker
	metricsHandler http.Handler
	version        string
	startTime      time.Time
	router         *gin.Engine
	server         *http.Server
}

// NewServer creates a new API server instance
func NewServer(userService UserService, bio interfaces.BioService, cfg *config.Config, logger interfaces.Logger, metrics interfaces.Metrics, opts ...Option) *Server {
	gin.SetMode(cfg.Server.Mode)

	s := &Server{
		users:     userService,
		bio:       bio,
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		version:   "dev",
		startTime: time.Now(),
		router:    gin.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(cors.New(s.corsConfig()))
	s.router.Use(s.metricsMiddleware())
}

func (s *Server) corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}

	origins := s.config.Server.CORSOrigins
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	return corsConfig
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	if s.metricsHandler != nil && s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Path, gin.WrapH(s.metricsHandler))
	}

	apiGroup := s.router.Group("/api")
	if s.limiter != nil && s.config.RateLimit.Enabled {
		apiGroup.Use(s.rateLimitMiddleware())
	}

	apiGroup.GET("/bio/status", s.getBioStatus)

	roles := apiGroup.Group("/roles")
	{
		roles.POST("", s.createRole)
		roles.GET("", s.listRoles)
		roles.GET("/:id", s.getRole)
		roles.PUT("/:id", s.updateRole)
		roles.DELETE("/:id", s.deleteRole)
	}

	userRoutes := apiGroup.Group("/users")
	{
		userRoutes.POST("", s.createUser)
		userRoutes.GET("", s.listUsers)
		userRoutes.GET("/:id", s.getUser)
		userRoutes.PUT("/:id", s.updateUser)
		userRoutes.DELETE("/:id", s.deleteUser)
		userRoutes.POST("/:id/bio", s.regenerateBio)
	}

	s.router.NoRoute(func(c *gin.Context) {
		s.writeError(c, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
}

// Start runs the server until ctx is cancelled, then shuts it down gracefully
func (s *Server) Start(ctx context.Context) error {
	srvCfg := s.config.Server
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", srvCfg.Port),
		Handler:      s.router,
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server", map[string]interface{}{
		"port": srvCfg.Port,
		"mode": gin.Mode(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server...")
	timeout := srvCfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}
