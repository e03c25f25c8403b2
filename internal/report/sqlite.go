// Package report archives completed session reports in SQLite or
// PostgreSQL behind a common store interface.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/medtriage-server/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	final_diagnosis TEXT NOT NULL,
	confidence REAL NOT NULL,
	severity TEXT NOT NULL,
	specialist TEXT NOT NULL,
	workflow_path TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_reports_session_id ON reports(session_id);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
`

// SQLiteStore persists report records in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (and migrates) the report database at path.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open report db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate report db: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Save archives a report record. Saving again for the same session
// replaces the earlier record.
func (s *SQLiteStore) Save(ctx context.Context, record *domain.ReportRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (session_id, title, final_diagnosis, confidence, severity, specialist, workflow_path, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			final_diagnosis = excluded.final_diagnosis,
			confidence = excluded.confidence,
			severity = excluded.severity,
			specialist = excluded.specialist,
			workflow_path = excluded.workflow_path,
			content = excluded.content,
			created_at = excluded.created_at`,
		record.SessionID, record.Title, record.FinalDiagnosis, record.Confidence,
		record.Severity, record.Specialist, record.WorkflowPath, record.Content,
		record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// GetBySession returns the archived report for a session.
func (s *SQLiteStore) GetBySession(ctx context.Context, sessionID string) (*domain.ReportRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, title, final_diagnosis, confidence, severity, specialist, workflow_path, content, created_at
		FROM reports WHERE session_id = ?`, sessionID)
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
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, title, final_diagnosis, confidence, severity, specialist, workflow_path, content, created_at
		FROM reports ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
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

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*domain.ReportRecord, error) {
	record := &domain.ReportRecord{}
	err := s.Scan(&record.ID, &record.SessionID, &record.Title,
		&record.FinalDiagnosis, &record.Confidence, &record.Severity,
		&record.Specialist, &record.WorkflowPath, &record.Content,
		&record.CreatedAt)
	if err != nil {
		return nil, err
	}
	return record, nil
}
