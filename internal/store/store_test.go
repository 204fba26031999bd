package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravilog-risk-core/internal/domain"
)

var baseTime = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func testRecord(sessionID, userID string, level domain.RiskLevel, at time.Time) *domain.AssessmentRecord {
	state := domain.NewSymptomState(sessionID, userID, "en", domain.Int(28))
	_ = state.Append(domain.SymptomEntry{QuestionID: "q.fever", SymptomID: "fever", Severity: domain.SeverityMild, RecordedAt: at})
	_ = state.Append(domain.SymptomEntry{QuestionID: "q.fever", SymptomID: "fever", Severity: domain.SeverityModerate, RecordedAt: at})

	return &domain.AssessmentRecord{
		Assessment: domain.Assessment{
			SessionID:         sessionID,
			UserID:            userID,
			Locale:            "en",
			RiskLevel:         level,
			Explanation:       "Risk level: " + string(level),
			ContributingRules: []string{"fever"},
			RecommendationIDs: []string{"rec.monitor_symptoms"},
			RuleRiskLevel:     domain.RiskLow,
			AIStatus:          domain.VerdictUnavailable,
			QuestionCount:     3,
			CreatedAt:         domain.Timestamp(at),
		},
		State: state,
	}
}

// storeFactories lets every behaviour test run against each embedded driver.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		DriverMemory: func() Store { return NewMemoryStore() },
		DriverSQLite: func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "assessments.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_AppendAndGet(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()
			ctx := context.Background()

			record := testRecord("session-1", "user-1", domain.RiskMedium, baseTime)
			require.NoError(t, s.Append(ctx, record))

			got, err := s.Get(ctx, "session-1")
			require.NoError(t, err)
			assert.Equal(t, domain.RiskMedium, got.Assessment.RiskLevel)
			assert.Equal(t, record.Assessment.RecommendationIDs, got.Assessment.RecommendationIDs)
			assert.True(t, record.Assessment.CreatedAt.Equal(got.Assessment.CreatedAt))
			require.NotNil(t, got.State)
			assert.Len(t, got.State.Entries, 2)
			assert.True(t, got.State.Entries[0].Superseded)
			assert.Equal(t, 28, *got.State.GestationalWeek)
		})
	}
}

func TestStore_AppendIsAppendOnly(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.Append(ctx, testRecord("session-1", "user-1", domain.RiskLow, baseTime)))
			err := s.Append(ctx, testRecord("session-1", "user-1", domain.RiskHigh, baseTime))
			assert.ErrorIs(t, err, domain.ErrAlreadyExists)

			got, err := s.Get(ctx, "session-1")
			require.NoError(t, err)
			assert.Equal(t, domain.RiskLow, got.Assessment.RiskLevel, "the first record is kept")

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	}
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			record := testRecord("session-1", "user-1", domain.RiskLow, baseTime)
			record.Assessment.RecommendationIDs = nil
			assert.Error(t, s.Append(context.Background(), record))
			assert.Error(t, s.Append(context.Background(), nil))
		})
	}
}

func TestStore_GetNotFound(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			_, err := s.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, domain.ErrAssessmentNotFound)
		})
	}
}

func TestStore_ListByUser(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.Append(ctx, testRecord("old", "user-1", domain.RiskLow, baseTime.Add(-10*24*time.Hour))))
			require.NoError(t, s.Append(ctx, testRecord("b", "user-1", domain.RiskHigh, baseTime.Add(2*time.Hour))))
			require.NoError(t, s.Append(ctx, testRecord("a", "user-1", domain.RiskMedium, baseTime)))
			require.NoError(t, s.Append(ctx, testRecord("other", "user-2", domain.RiskHigh, baseTime)))

			list, err := s.ListByUser(ctx, "user-1", baseTime.Add(-7*24*time.Hour))
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a", list[0].SessionID)
			assert.Equal(t, "b", list[1].SessionID)

			empty, err := s.ListByUser(ctx, "nobody", time.Time{})
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)
		})
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()
			ctx := context.Background()

			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- s.Append(ctx, testRecord(fmt.Sprintf("session-%d", i), "user-1", domain.RiskLow, baseTime))
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				assert.NoError(t, err)
			}

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(20), count)
		})
	}
}

func TestExportJSON(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, testRecord("a", "user-1", domain.RiskMedium, baseTime)))

	var buf bytes.Buffer
	require.NoError(t, ExportJSON(ctx, s, "user-1", time.Time{}, &buf))

	var export AssessmentExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, "user-1", export.UserID)
	assert.Equal(t, 1, export.Count)
	assert.Equal(t, "a", export.Assessments[0].SessionID)
}

func TestOpen(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := Open(domain.StoreConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(domain.StoreConfig{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "a.db")}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(domain.StoreConfig{Driver: DriverSQLite}, logger)
	assert.Error(t, err)

	_, err = Open(domain.StoreConfig{Driver: "mongo"}, logger)
	assert.Error(t, err)
}
