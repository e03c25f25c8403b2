package report

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtriage-server/internal/domain"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &PostgresStore{db: db, logger: logger}, mock
}

func reportColumns() []string {
	return []string{"id", "session_id", "title", "final_diagnosis", "confidence",
		"severity", "specialist", "workflow_path", "content", "created_at"}
}

func TestPostgresSaveReturnsID(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("INSERT INTO reports").
		WithArgs("sess-1", "Medical Analysis Report", "Migraine", 0.8, "moderate",
			"neurologist", "textual_only", "content", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	record := &domain.ReportRecord{
		SessionID:      "sess-1",
		Title:          "Medical Analysis Report",
		FinalDiagnosis: "Migraine",
		Confidence:     0.8,
		Severity:       "moderate",
		Specialist:     "neurologist",
		WorkflowPath:   "textual_only",
		Content:        "content",
	}
	require.NoError(t, store.Save(context.Background(), record))
	assert.Equal(t, int64(42), record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetBySession(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	created := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM reports WHERE session_id").
		WithArgs("sess-2").
		WillReturnRows(sqlmock.NewRows(reportColumns()).
			AddRow(int64(7), "sess-2", "Medical Analysis Report", "Eczema", 0.65,
				"mild", "dermatologist", "textual_to_screening,screening_to_followup",
				"report body", created))

	got, err := store.GetBySession(context.Background(), "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "Eczema", got.FinalDiagnosis)
	assert.Equal(t, "dermatologist", got.Specialist)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetUnknownSession(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM reports WHERE session_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(reportColumns()))

	_, err := store.GetBySession(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestPostgresList(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	created := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM reports ORDER BY created_at DESC").
		WithArgs(5, 0).
		WillReturnRows(sqlmock.NewRows(reportColumns()).
			AddRow(int64(2), "sess-b", "Medical Analysis Report", "Flu", 0.7,
				"mild", "general_practitioner", "textual_only", "b", created).
			AddRow(int64(1), "sess-a", "Medical Analysis Report", "Anemia", 0.6,
				"moderate", "hematologist", "textual_to_followup,followup_only", "a",
				created.Add(-time.Hour)))

	records, err := store.List(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sess-b", records[0].SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
