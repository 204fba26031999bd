package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gravilog-risk-core/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite assessment store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// pragmas in the DSN apply to every pooled connection
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		locale TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		rule_risk_level TEXT NOT NULL,
		ai_risk_level TEXT NOT NULL DEFAULT '',
		ai_status TEXT NOT NULL,
		question_count INTEGER NOT NULL,
		assessment_json TEXT NOT NULL,
		state_json TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_user ON assessments(user_id, created_at_ms);
	CREATE INDEX IF NOT EXISTS idx_assessments_risk ON assessments(risk_level);
	`

	_, err := db.Exec(schema)
	return err
}

// Append inserts a record. A second record for the same session is rejected.
func (s *SQLiteStore) Append(ctx context.Context, record *domain.AssessmentRecord) error {
	assessment, state, err := encodeRecord(record)
	if err != nil {
		return err
	}
	a := record.Assessment

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO assessments (
			session_id, user_id, locale, risk_level, rule_risk_level,
			ai_risk_level, ai_status, question_count,
			assessment_json, state_json, created_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`,
		a.SessionID, a.UserID, a.Locale, string(a.RiskLevel), string(a.RuleRiskLevel),
		string(a.AIRiskLevel), string(a.AIStatus), a.QuestionCount,
		string(assessment), string(state), a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Get retrieves the record of one session.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*domain.AssessmentRecord, error) {
	var assessment, state string
	err := s.db.QueryRowContext(ctx,
		"SELECT assessment_json, state_json FROM assessments WHERE session_id = ?",
		sessionID,
	).Scan(&assessment, &state)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssessmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return decodeRecord([]byte(assessment), []byte(state))
}

// ListByUser returns the user's assessments created at or after since, oldest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, since time.Time) ([]domain.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assessment_json
		FROM assessments
		WHERE user_id = ? AND created_at_ms >= ?
		ORDER BY created_at_ms ASC, session_id ASC
	`, userID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := []domain.Assessment{}
	for rows.Next() {
		var assessment string
		if err := rows.Scan(&assessment); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record, err := decodeRecord([]byte(assessment), nil)
		if err != nil {
			return nil, err
		}
		result = append(result, record.Assessment)
	}
	return result, rows.Err()
}

// Count returns the number of stored assessments.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments").Scan(&count)
	return count, err
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
