// Package setup wires shared infrastructure: logging and configuration.
package setup

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/config"
	"github.com/medtriage-server/internal/domain"
)

// NewLogger builds a logrus logger from the logging configuration.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	switch cfg.Output {
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger
}

// LoadConfig creates a configuration manager and loads the configuration.
func LoadConfig() (*config.Manager, error) {
	mgr := config.NewManager()
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return mgr, nil
}
