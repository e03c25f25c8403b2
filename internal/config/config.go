// Package config provides configuration management using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/medtriage-server/internal/domain"
)

// Manager loads and validates the application configuration from a YAML
// file and MEDTRIAGE_-prefixed environment variables.
type Manager struct {
	config *domain.Config
	viper  *viper.Viper
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/medtriage")

	v.SetEnvPrefix("MEDTRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Manager{viper: v}
}

// Load reads configuration from file and environment variables.
func (m *Manager) Load() error {
	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults plus env vars apply.
	}

	config := &domain.Config{}
	if err := m.viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	m.config = config
	return m.Validate()
}

// setDefaults sets default configuration values.
func (m *Manager) setDefaults() {
	// Server defaults
	m.viper.SetDefault("server.host", "0.0.0.0")
	m.viper.SetDefault("server.port", 8080)
	m.viper.SetDefault("server.read_timeout", 30*time.Second)
	m.viper.SetDefault("server.write_timeout", 30*time.Second)
	m.viper.SetDefault("server.idle_timeout", 120*time.Second)

	// Workflow defaults
	m.viper.SetDefault("workflow.confidence_threshold", 0.75)
	m.viper.SetDefault("workflow.sampling_temperature", 0.1)

	// Session store defaults
	m.viper.SetDefault("session.backend", "memory")
	m.viper.SetDefault("session.max_sessions", 1000)
	m.viper.SetDefault("session.ttl", 2*time.Hour)
	m.viper.SetDefault("session.tombstone_ttl", 24*time.Hour)
	m.viper.SetDefault("session.redis_url", "redis://localhost:6379/0")

	// Report archive defaults
	m.viper.SetDefault("report.backend", "sqlite")
	m.viper.SetDefault("report.sqlite_path", "./data/reports.db")
	m.viper.SetDefault("report.postgres_url", "")

	// Text generation defaults
	m.viper.SetDefault("textgen.base_url", "")
	m.viper.SetDefault("textgen.api_key", "")
	m.viper.SetDefault("textgen.model", "gpt-4o-mini")
	m.viper.SetDefault("textgen.timeout", 60*time.Second)
	m.viper.SetDefault("textgen.rate_limit", 10)

	// Image classification defaults
	m.viper.SetDefault("imaging.base_url", "http://localhost:8501")
	m.viper.SetDefault("imaging.api_key", "")
	m.viper.SetDefault("imaging.timeout", 30*time.Second)
	m.viper.SetDefault("imaging.rate_limit", 5)
	m.viper.SetDefault("imaging.max_dimension", 1024)

	// Logging defaults
	m.viper.SetDefault("logging.level", "info")
	m.viper.SetDefault("logging.format", "json")
	m.viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the loaded configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns the server configuration.
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	if m.config == nil {
		return nil
	}
	return &m.config.Server
}

// Validate checks the loaded configuration for consistency.
func (m *Manager) Validate() error {
	if m.config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	if m.config.Server.Port < 1 || m.config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", m.config.Server.Port)
	}

	if t := m.config.Workflow.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("workflow confidence_threshold must be in [0,1], got %f", t)
	}

	switch m.config.Session.Backend {
	case "memory":
	case "redis":
		if m.config.Session.RedisURL == "" {
			return fmt.Errorf("session backend is redis but redis_url is empty")
		}
	default:
		return fmt.Errorf("unknown session backend: %s", m.config.Session.Backend)
	}
	if m.config.Session.MaxSessions < 1 {
		return fmt.Errorf("session max_sessions must be positive, got %d", m.config.Session.MaxSessions)
	}
	if m.config.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	switch m.config.Report.Backend {
	case "sqlite":
		if m.config.Report.SQLitePath == "" {
			return fmt.Errorf("report backend is sqlite but sqlite_path is empty")
		}
	case "postgres":
		if m.config.Report.PostgresURL == "" {
			return fmt.Errorf("report backend is postgres but postgres_url is empty")
		}
	default:
		return fmt.Errorf("unknown report backend: %s", m.config.Report.Backend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[m.config.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", m.config.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[m.config.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", m.config.Logging.Format)
	}

	return nil
}

// IsProduction reports whether the app runs in production mode.
func (m *Manager) IsProduction() bool {
	env := m.viper.GetString("environment")
	return env == "production" || env == "prod"
}
