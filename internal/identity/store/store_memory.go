package store

import (
	"context"
	"sync"
	"time"

	"intake/internal/identity/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
)

// InMemoryStore holds sessions in a map. Expired sessions are treated as
// missing and dropped lazily.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[id.SessionID]*models.Session
	now      func() time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]*models.Session), now: time.Now}
}

// WithClock overrides the clock used for expiry. Tests only.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Create(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(sess.ID); ok {
		return sentinel.ErrAlreadyUsed
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(sessionID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sess.Clone(), nil
}

// Execute validates and mutates a session under the store lock. When validate
// fails nothing is written.
func (s *InMemoryStore) Execute(_ context.Context, sessionID id.SessionID, validate func(*models.Session) error, mutate func(*models.Session)) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.live(sessionID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	working.ID = current.ID
	working.ExpiresAt = current.ExpiresAt
	s.sessions[sessionID] = working.Clone()
	return working, nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// live returns the session if present and unexpired. Callers hold mu.
func (s *InMemoryStore) live(sessionID id.SessionID) (*models.Session, bool) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, sessionID)
		return nil, false
	}
	return sess, true
}

// Sweep drops every expired session and returns how many were removed.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for sessionID, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, sessionID)
			removed++
		}
	}
	return removed
}
