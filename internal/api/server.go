// Package api exposes the diagnostic workflow over HTTP and pushes stage
// changes to websocket subscribers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/domain"
	"github.com/medtriage-server/internal/workflow"
)

// Server represents the HTTP server.
type Server struct {
	configManager domain.ConfigManager
	engine        *workflow.Engine
	reports       domain.ReportStore
	hub           *Hub
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance.
func NewServer(configManager domain.ConfigManager, engine *workflow.Engine, reports domain.ReportStore, hub *Hub, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(auditLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(correlationIDMiddleware())
	router.Use(securityHeaders())

	server := &Server{
		configManager: configManager,
		engine:        engine,
		reports:       reports,
		hub:           hub,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/triage", s.handleStartTriage)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.POST("/sessions/:id/answers", s.handleSubmitAnswers)
		v1.POST("/sessions/:id/image", s.handleSubmitImage)
		v1.POST("/sessions/:id/analysis", s.handleRunSynthesis)
		v1.POST("/sessions/:id/recommendation", s.handleRunRecommendation)
		v1.POST("/sessions/:id/report", s.handleGenerateReport)
		v1.GET("/sessions/:id/report", s.handleGetReport)
		v1.GET("/reports", s.handleListReports)
	}

	s.router.GET("/ws/sessions/:id", s.handleSessionSocket)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   "1.0.0",
	})
}
