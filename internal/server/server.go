package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/auth"
	"github.com/adina8244/grounded-git-mcp-server/internal/engine"
	"github.com/adina8244/grounded-git-mcp-server/internal/policy"
)

type Server struct {
	echo   *echo.Echo
	config Config
	hub    *Hub
}

func New(cfg Config, eng *engine.Engine, pol *policy.Store, authManager *auth.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		config: cfg,
		hub:    NewHub(eng),
	}

	s.setupMiddleware()
	s.setupRoutes(eng, pol, authManager)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Info().Int("port", s.config.Port).Msg("starting HTTP server")

	s.echo.Server.ReadTimeout = time.Duration(s.config.ReadTimeout) * time.Second
	s.echo.Server.WriteTimeout = time.Duration(s.config.WriteTimeout) * time.Second

	go s.hub.Run()

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.Recover())
}

func (s *Server) setupRoutes(eng *engine.Engine, pol *policy.Store, authManager *auth.Manager) {
	commandHandler := NewCommandHandler(eng)
	auditHandler := NewAuditHandler(eng.Store())
	inspectHandler := NewInspectHandler(pol)
	authHandler := auth.NewHandler(authManager)

	// Public endpoints (no auth required)
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/login", authHandler.Login)

	protected := s.echo.Group("")
	protected.Use(authManager.Middleware())

	protected.GET("/me", authHandler.Me)

	// Approval engine
	protected.POST("/commands", commandHandler.HandleCommand)
	protected.GET("/proposals", commandHandler.ListProposals)
	protected.GET("/proposals/:id", commandHandler.GetProposal)
	protected.POST("/proposals/:id/confirm", commandHandler.Confirm)
	protected.POST("/proposals/:id/execute", commandHandler.Execute)
	protected.POST("/proposals/:id/cancel", commandHandler.Cancel)
	protected.GET("/audit", auditHandler.GetAudit)
	protected.GET("/ws", s.hub.HandleWebSocket)

	// Read-only repository tools (no approval semantics)
	protected.GET("/repo/info", inspectHandler.RepoInfo)
	protected.GET("/repo/status", inspectHandler.Status)
	protected.GET("/repo/log", inspectHandler.Log)
	protected.GET("/repo/diff", inspectHandler.DiffSummary)
	protected.GET("/repo/show/:commit", inspectHandler.ShowCommit)
	protected.GET("/repo/grep", inspectHandler.Grep)
	protected.GET("/repo/blame", inspectHandler.Blame)
	protected.GET("/repo/conflicts", inspectHandler.DetectConflicts)
	protected.GET("/repo/tree", inspectHandler.Tree)
	protected.GET("/repo/file", inspectHandler.FileAtRef)
	protected.GET("/repo/range-diff", inspectHandler.DiffRange)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
