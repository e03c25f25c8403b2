package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	final_diagnosis TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	severity TEXT NOT NULL,
	specialist TEXT NOT NULL,
	workflow_path TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
`

// PostgresStore persists report records in PostgreSQL for multi-instance
// deployments.
type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresStore connects to PostgreSQL and migrates the report table.
func NewPostgresStore(url string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate report table: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Save archives a report record, replacing any earlier record for the
// same session.
func (s *PostgresStore) Save(ctx context.Context, record *domain.ReportRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reports (session_id, title, final_diagnosis, confidence, severity, specialist, workflow_path, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			title = EXCLUDED.title,
			final_diagnosis = EXCLUDED.final_diagnosis,
			confidence = EXCLUDED.confidence,
			severity = EXCLUDED.severity,
			specialist = EXCLUDED.specialist,
			workflow_path = EXCLUDED.workflow_path,
			content = EXCLUDED.content,
			created_at = EXCLUDED.created_at
		RETURNING id`,
		record.SessionID, record.Title, record.FinalDiagnosis, record.Confidence,
		record.Severity, record.Specialist, record.WorkflowPath, record.Content,
		record.CreatedAt).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetBySession returns the archived report for a session.
func (s *PostgresStore) GetBySession(ctx context.Context, sessionID string) (*domain.ReportRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, title, final_diagnosis, confidence, severity, specialist, workflow_path, content, created_at
		FROM reports WHERE session_id = $1`, sessionID)
	record, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return record, nil
}

// List returns archived reports, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, title, final_diagnosis, confidence, severity, specialist, workflow_path, content, created_at
		FROM reports ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var records []*domain.ReportRecord
	for rows.Next() {
		record, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
