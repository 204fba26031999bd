package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gravilog-risk-core/internal/domain"
)

// MemoryStore keeps assessments in process memory. It is the default when no
// database is configured; records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.AssessmentRecord
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.AssessmentRecord)}
}

// Append stores a record unless one exists for the session.
func (s *MemoryStore) Append(_ context.Context, record *domain.AssessmentRecord) error {
	if _, _, err := encodeRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := record.Assessment.SessionID
	if _, ok := s.records[id]; ok {
		return domain.ErrAlreadyExists
	}
	stored := domain.AssessmentRecord{Assessment: record.Assessment.Clone()}
	if record.State != nil {
		stored.State = record.State.Snapshot()
	}
	s.records[id] = stored
	return nil
}

// Get returns a copy of the record for a session.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*domain.AssessmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[sessionID]
	if !ok {
		return nil, domain.ErrAssessmentNotFound
	}
	out := &domain.AssessmentRecord{Assessment: r.Assessment.Clone()}
	if r.State != nil {
		out.State = r.State.Snapshot()
	}
	return out, nil
}

// ListByUser returns the user's assessments created at or after since, oldest first.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, since time.Time) ([]domain.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Assessment{}
	for _, r := range s.records {
		if r.Assessment.UserID == userID && !r.Assessment.CreatedAt.Before(since) {
			out = append(out, r.Assessment.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Count returns the number of stored assessments.
func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
