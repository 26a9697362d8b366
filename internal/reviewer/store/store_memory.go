package store

import (
	"context"
	"sort"
	"sync"

	"intake/internal/reviewer/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
)

// InMemoryStore keeps organizations in maps indexed by id, label and token hash.
type InMemoryStore struct {
	mu      sync.RWMutex
	orgs    map[id.ReviewerID]*models.Organization
	byLabel map[string]id.ReviewerID
	byHash  map[string]id.ReviewerID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		orgs:    make(map[id.ReviewerID]*models.Organization),
		byLabel: make(map[string]id.ReviewerID),
		byHash:  make(map[string]id.ReviewerID),
	}
}

// Create inserts org; a taken label or token hash is sentinel.ErrAlreadyUsed.
func (s *InMemoryStore) Create(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[org.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byLabel[org.ShortLabel]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byHash[org.TokenHash]; ok {
		return sentinel.ErrAlreadyUsed
	}
	cp := *org
	s.orgs[org.ID] = &cp
	s.byLabel[org.ShortLabel] = org.ID
	s.byHash[org.TokenHash] = org.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, reviewerID id.ReviewerID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[reviewerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *InMemoryStore) FindByTokenHash(_ context.Context, tokenHash string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reviewerID, ok := s.byHash[tokenHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.orgs[reviewerID]
	return &cp, nil
}

// List returns every organization ordered by short label.
func (s *InMemoryStore) List(_ context.Context) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		cp := *org
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShortLabel < out[j].ShortLabel })
	return out, nil
}

// Update replaces the mutable fields of an existing organization.
func (s *InMemoryStore) Update(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.orgs[org.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if owner, taken := s.byHash[org.TokenHash]; taken && owner != org.ID {
		return sentinel.ErrAlreadyUsed
	}
	delete(s.byHash, current.TokenHash)
	cp := *org
	cp.ShortLabel = current.ShortLabel
	cp.CreatedAt = current.CreatedAt
	s.orgs[org.ID] = &cp
	s.byHash[cp.TokenHash] = org.ID
	return nil
}
