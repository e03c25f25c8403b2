package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/medtriage-server/internal/api"
	"github.com/medtriage-server/internal/domain"
	"github.com/medtriage-server/internal/report"
	"github.com/medtriage-server/internal/session"
	"github.com/medtriage-server/internal/setup"
	"github.com/medtriage-server/internal/workflow"
	"github.com/medtriage-server/pkg/external"
)

func main() {
	// Load configuration
	configManager, err := setup.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := setup.NewLogger(cfg.Logging)
	logger.WithFields(map[string]interface{}{
		"host":            cfg.Server.Host,
		"port":            cfg.Server.Port,
		"session_backend": cfg.Session.Backend,
		"report_backend":  cfg.Report.Backend,
	}).Info("Starting medtriage server")

	// Session store
	var sessions domain.SessionStore
	switch cfg.Session.Backend {
	case "redis":
		store, err := session.NewRedisStore(cfg.Session, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis session store")
		}
		defer store.Close()
		sessions = store
	default:
		sessions = session.NewMemoryStore(cfg.Session, logger)
	}

	// Report archive
	reports, err := report.NewStore(cfg.Report, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open report store")
	}
	defer reports.Close()

	// External collaborators
	textGen := external.NewOpenAITextGenerator(cfg.TextGen, logger)
	classifier := external.NewHTTPImageClassifier(cfg.Imaging, logger)

	hub := api.NewHub(logger)
	engine := workflow.NewEngine(textGen, classifier, sessions, reports, hub, cfg.Workflow, logger)
	server := api.NewServer(configManager, engine, reports, hub, logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down server...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
