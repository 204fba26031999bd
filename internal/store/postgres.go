package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/gravilog-risk-core/internal/domain"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL assessment store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL assessment store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("postgres DSN is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Append inserts a record. A second record for the same session is rejected.
func (s *PostgresStore) Append(ctx context.Context, record *domain.AssessmentRecord) error {
	assessment, state, err := encodeRecord(record)
	if err != nil {
		return err
	}
	a := record.Assessment

	query := `
		INSERT INTO assessments (
			session_id, user_id, locale, risk_level, rule_risk_level,
			ai_risk_level, ai_status, question_count,
			assessment, state, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		a.SessionID, a.UserID, a.Locale, string(a.RiskLevel), string(a.RuleRiskLevel),
		string(a.AIRiskLevel), string(a.AIStatus), a.QuestionCount,
		assessment, state, a.CreatedAt,
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
func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*domain.AssessmentRecord, error) {
	var assessment, state []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT assessment, state FROM assessments WHERE session_id = $1",
		sessionID,
	).Scan(&assessment, &state)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssessmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return decodeRecord(assessment, state)
}

// ListByUser returns the user's assessments created at or after since, oldest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, since time.Time) ([]domain.Assessment, error) {
	query := `
		SELECT assessment
		FROM assessments
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at ASC, session_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	result := []domain.Assessment{}
	for rows.Next() {
		var assessment []byte
		if err := rows.Scan(&assessment); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record, err := decodeRecord(assessment, nil)
		if err != nil {
			return nil, err
		}
		result = append(result, record.Assessment)
	}

	return result, rows.Err()
}

// Count returns the number of stored assessments.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
