package service

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
)

// Session is the live, mutable part of one assessment dialogue. mu serializes
// turns so an answer is fully appended and evaluated before the next one.
// discarded is guarded by mu.
type Session struct {
	mu        sync.Mutex
	discarded bool
	ID        string
	State     *domain.SymptomState
	Selector  *QuestionSelector
	CreatedAt time.Time
}

// SessionStore keeps live sessions keyed by ID with an idle expiry. An expired
// session is dropped exactly like an abandoned one.
type SessionStore struct {
	live      *gocache.Cache
	completed *gocache.Cache
	ttl       time.Duration
	logger    *logrus.Logger
}

// NewSessionStore creates a session store
func NewSessionStore(sessionTTL, completedTTL time.Duration, logger *logrus.Logger) *SessionStore {
	live := gocache.New(sessionTTL, sessionTTL/2)
	live.OnEvicted(func(id string, _ interface{}) {
		logger.WithField("session_id", id).Debug("Session removed from live store")
	})
	return &SessionStore{
		live:      live,
		completed: gocache.New(completedTTL, completedTTL/2),
		ttl:       sessionTTL,
		logger:    logger,
	}
}

// Put registers a new live session.
func (s *SessionStore) Put(sess *Session) {
	s.live.Set(sess.ID, sess, gocache.DefaultExpiration)
}

// Get returns a live session and refreshes its idle expiry.
func (s *SessionStore) Get(id string) (*Session, bool) {
	v, ok := s.live.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	s.live.Set(id, sess, gocache.DefaultExpiration)
	return sess, true
}

// Delete drops a live session.
func (s *SessionStore) Delete(id string) bool {
	if _, ok := s.live.Get(id); !ok {
		return false
	}
	s.live.Delete(id)
	return true
}

// Discard marks sess as gone and drops it from the live store. The caller must
// hold sess.mu, so a turn already waiting on the lock sees the mark and stops.
func (s *SessionStore) Discard(sess *Session) bool {
	sess.discarded = true
	return s.Delete(sess.ID)
}

// Complete retires the live session and keeps a copy of its assessment.
func (s *SessionStore) Complete(id string, assessment domain.Assessment) {
	s.completed.Set(id, assessment.Clone(), gocache.DefaultExpiration)
	s.live.Delete(id)
}

// Completed returns a copy of a recently completed assessment.
func (s *SessionStore) Completed(id string) (domain.Assessment, bool) {
	v, ok := s.completed.Get(id)
	if !ok {
		return domain.Assessment{}, false
	}
	return v.(domain.Assessment).Clone(), true
}

// LiveCount returns the number of live sessions.
func (s *SessionStore) LiveCount() int {
	return s.live.ItemCount()
}
