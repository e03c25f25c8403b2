package domain

import (
	"time"
)

// Config represents the main application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Session  SessionConfig  `mapstructure:"session"`
	Report   ReportConfig   `mapstructure:"report"`
	TextGen  TextGenConfig  `mapstructure:"textgen"`
	Imaging  ImagingConfig  `mapstructure:"imaging"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// WorkflowConfig holds the routing policy knobs.
type WorkflowConfig struct {
	// ConfidenceThreshold: textual averages below it trigger generic
	// follow-up questioning.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// SamplingTemperature is passed through to diagnosis generation and
	// folded into the confidence scorer's temperature factor.
	SamplingTemperature float64 `mapstructure:"sampling_temperature"`
}

// SessionConfig controls the session store.
type SessionConfig struct {
	Backend      string        `mapstructure:"backend"` // memory or redis
	MaxSessions  int           `mapstructure:"max_sessions"`
	TTL          time.Duration `mapstructure:"ttl"`
	TombstoneTTL time.Duration `mapstructure:"tombstone_ttl"`
	RedisURL     string        `mapstructure:"redis_url"`
}

// ReportConfig controls the report archive.
type ReportConfig struct {
	Backend     string `mapstructure:"backend"` // sqlite or postgres
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// TextGenConfig configures the text-generation collaborator.
type TextGenConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// ImagingConfig configures the image-classification collaborator.
type ImagingConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
	// MaxDimension: uploads larger than this on either axis are resized
	// before classification.
	MaxDimension int `mapstructure:"max_dimension"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
