package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
)

// AuditRepository writes the full answer history of finished sessions,
// superseded answers included, for later review.
type AuditRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *pgxpool.Pool, logger *logrus.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: logger,
	}
}

// SaveTrail writes every entry of state in one transaction. Entries already
// written for the session are left untouched.
func (r *AuditRepository) SaveTrail(ctx context.Context, state *domain.SymptomState) error {
	if len(state.Entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO symptom_entries (
			session_id, user_id, gestational_week, sequence, question_id,
			symptom_id, severity, duration_hours, free_text, superseded, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (session_id, sequence) DO NOTHING`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning audit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, e := range state.Entries {
		batch.Queue(query,
			state.SessionID,
			state.UserID,
			state.GestationalWeek,
			e.Sequence,
			e.QuestionID,
			e.SymptomID,
			string(e.Severity),
			e.DurationHours,
			e.FreeText,
			e.Superseded,
			e.RecordedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range state.Entries {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.log.WithFields(logrus.Fields{
				"session_id": state.SessionID,
				"error":      err,
			}).Error("Failed to write symptom entry")
			return fmt.Errorf("writing symptom entry: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing audit batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing audit transaction: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"session_id": state.SessionID,
		"entries":    len(state.Entries),
	}).Debug("Symptom audit trail written")

	return nil
}

// ListEntries returns the audit trail of a session in answer order.
func (r *AuditRepository) ListEntries(ctx context.Context, sessionID string) ([]domain.SymptomEntry, error) {
	query := `
		SELECT sequence, question_id, symptom_id, severity, duration_hours,
			   free_text, superseded, recorded_at
		FROM symptom_entries
		WHERE session_id = $1
		ORDER BY sequence`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying symptom entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.SymptomEntry{}
	for rows.Next() {
		var (
			e        domain.SymptomEntry
			severity string
		)
		if err := rows.Scan(&e.Sequence, &e.QuestionID, &e.SymptomID, &severity,
			&e.DurationHours, &e.FreeText, &e.Superseded, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning symptom entry: %w", err)
		}
		e.Severity = domain.Severity(severity)
		e.RecordedAt = e.RecordedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SymptomCounts returns how often each symptom was reported at mild or worse
// by a user since a point in time, counting only final answers.
func (r *AuditRepository) SymptomCounts(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	query := `
		SELECT symptom_id, COUNT(*)
		FROM symptom_entries
		WHERE user_id = $1 AND recorded_at >= $2 AND NOT superseded
		  AND severity IN ('mild', 'moderate', 'severe')
		GROUP BY symptom_id`

	rows, err := r.db.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("querying symptom counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			symptom string
			n       int
		)
		if err := rows.Scan(&symptom, &n); err != nil {
			return nil, fmt.Errorf("scanning symptom count: %w", err)
		}
		counts[symptom] = n
	}
	return counts, rows.Err()
}
