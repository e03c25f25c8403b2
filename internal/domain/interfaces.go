package domain

import (
	"context"
)

// TextGenerator is the text-generation collaborator. Implementations must
// be safe for concurrent use by independent sessions. An empty result is a
// failure (ErrEmptyGeneration), never silent success.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// ImageClassifier is the image-classification collaborator.
type ImageClassifier interface {
	Classify(ctx context.Context, imageBytes []byte) (*ClassificationResult, error)
}

// SessionStore keeps session-state records. Get distinguishes never-seen
// sessions (ErrSessionNotFound) from evicted or archived ones
// (ErrSessionStale). Acquire grants the per-session handler lock; a second
// concurrent Acquire for the same session fails with ErrSessionBusy.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*SessionState, error)
	Put(ctx context.Context, state *SessionState) error
	Delete(ctx context.Context, sessionID string) error
	Acquire(sessionID string) (release func(), err error)
}

// ReportStore archives completed session reports.
type ReportStore interface {
	Save(ctx context.Context, record *ReportRecord) error
	GetBySession(ctx context.Context, sessionID string) (*ReportRecord, error)
	List(ctx context.Context, limit, offset int) ([]*ReportRecord, error)
	Close() error
}

// ConfigManager provides access to application configuration.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	Validate() error
	IsProduction() bool
}

// StagePublisher pushes stage-change notifications to interested clients.
// The websocket hub implements it; a no-op implementation is valid.
type StagePublisher interface {
	PublishStage(sessionID string, stage Stage, hint NextActionHint)
}
