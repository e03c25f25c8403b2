package report

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/domain"
)

// NewStore builds the report store named by the configuration.
func NewStore(cfg domain.ReportConfig, logger *logrus.Logger) (domain.ReportStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStore(cfg.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("unknown report backend: %s", cfg.Backend)
	}
}
