// Package store persists finished assessments append-only. Records are never
// updated or deleted once written.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is an append-only assessment store.
type Store interface {
	domain.AssessmentStore

	// Count returns the number of stored assessments.
	Count(ctx context.Context) (int64, error)
}

// AssessmentExport is the JSON export format of a user's history.
type AssessmentExport struct {
	Version     string              `json:"version"`
	ExportedAt  time.Time           `json:"exported_at"`
	UserID      string              `json:"user_id"`
	Count       int                 `json:"count"`
	Assessments []domain.Assessment `json:"assessments"`
}

// Open creates the store selected by config.
func Open(config domain.StoreConfig, logger *logrus.Logger) (Store, error) {
	switch config.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(config.SQLitePath)
	case DriverPostgres:
		return NewPostgresStoreFromURL(config.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Driver)
	}
}

// ExportJSON writes every assessment of userID since the given time as JSON.
func ExportJSON(ctx context.Context, s domain.AssessmentStore, userID string, since time.Time, writer io.Writer) error {
	all, err := s.ListByUser(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("failed to list assessments: %w", err)
	}

	export := &AssessmentExport{
		Version:     "1.0",
		ExportedAt:  time.Now().UTC(),
		UserID:      userID,
		Count:       len(all),
		Assessments: all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// encodeRecord validates a record and serializes its parts for storage.
func encodeRecord(record *domain.AssessmentRecord) (assessment, state []byte, err error) {
	if record == nil {
		return nil, nil, domain.NewValidationError("record", "record is required", nil)
	}
	if err := record.Assessment.Validate(); err != nil {
		return nil, nil, err
	}

	assessment, err = json.Marshal(record.Assessment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode assessment: %w", err)
	}
	state = []byte("null")
	if record.State != nil {
		if state, err = json.Marshal(record.State); err != nil {
			return nil, nil, fmt.Errorf("failed to encode symptom state: %w", err)
		}
	}
	return assessment, state, nil
}

func decodeRecord(assessment, state []byte) (*domain.AssessmentRecord, error) {
	record := &domain.AssessmentRecord{}
	if err := json.Unmarshal(assessment, &record.Assessment); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	if len(state) > 0 && string(state) != "null" {
		record.State = &domain.SymptomState{}
		if err := json.Unmarshal(state, record.State); err != nil {
			return nil, fmt.Errorf("failed to decode symptom state: %w", err)
		}
	}
	return record, nil
}
