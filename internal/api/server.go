package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vaxtrack/vaxtrack-core/internal/config"
	"github.com/vaxtrack/vaxtrack-core/internal/monitoring"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// Server wires the HTTP surface: routing, auth middleware, metrics, and
// graceful shutdown.
type Server struct {
	cfg      *config.Config
	handlers *Handlers
	logger   logger.Logger
	router   *gin.Engine
	http     *http.Server
}

func NewServer(cfg *config.Config, handlers *Handlers, log logger.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		handlers: handlers,
		logger:   log,
		router:   gin.New(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(monitoring.HTTPMetricsMiddleware())

	s.router.GET("/health", s.handlers.Health)
	monitoring.SetupPrometheusMetrics(s.router)

	authz := s.router.Group("/api/v1/authz")
	authz.Use(JWTAuthMiddleware(s.cfg.Auth.JWTSecret, s.logger))
	{
		authz.POST("/check", s.handlers.CheckPermission)
		authz.POST("/roles/assign", s.handlers.AssignRole)
		authz.GET("/collections/:resource", s.handlers.CollectionAccess)
		authz.GET("/me", s.handlers.Whoami)
	}
}

// Router exposes the gin engine for httptest.
func (s *Server) Router() *gin.Engine { return s.router }

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "port", s.cfg.Port, "environment", s.cfg.Environment)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("shutting down http server")
	return s.http.Shutdown(shutdownCtx)
}
