package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"intake/internal/record/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
)

// InMemoryStore keeps records in maps. It copies on every read and write so
// callers never alias stored state. Serialization of read-decide-write
// sequences is the job of the transaction runner wrapping it.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  map[id.RecordID]*models.Record
	byToken  map[id.RetrievalToken]id.RecordID
	sections map[id.RecordID]map[models.Section]models.SectionData
	uploads  map[id.RecordID][]models.Upload
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[id.RecordID]*models.Record),
		byToken:  make(map[id.RetrievalToken]id.RecordID),
		sections: make(map[id.RecordID]map[models.Section]models.SectionData),
		uploads:  make(map[id.RecordID][]models.Upload),
	}
}

func (s *InMemoryStore) FindByID(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

// FindByIDForUpdate is FindByID; the sharded transaction already holds the
// record's shard.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.FindByID(ctx, recordID)
}

func (s *InMemoryStore) FindByToken(_ context.Context, token id.RetrievalToken) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recordID, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[recordID].Clone(), nil
}

func (s *InMemoryStore) FindByTokenForUpdate(ctx context.Context, token id.RetrievalToken) (*models.Record, error) {
	return s.FindByToken(ctx, token)
}

func (s *InMemoryStore) ListVerifiedByEmail(_ context.Context, email string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, rec := range s.records {
		if rec.EmailVerified && strings.EqualFold(rec.Email, email) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// Insert fails with sentinel.ErrConflict when the id or token is taken.
func (s *InMemoryStore) Insert(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byToken[record.RetrievalToken]; ok {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = record.Clone()
	s.byToken[record.RetrievalToken] = record.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.RetrievalToken != record.RetrievalToken {
		return sentinel.ErrInvalidState
	}
	s.records[record.ID] = record.Clone()
	return nil
}

// DeleteMany removes all listed records or, if any is missing, none.
func (s *InMemoryStore) DeleteMany(_ context.Context, recordIDs []id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, recordID := range recordIDs {
		if _, ok := s.records[recordID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	for _, recordID := range recordIDs {
		delete(s.byToken, s.records[recordID].RetrievalToken)
		delete(s.records, recordID)
		delete(s.sections, recordID)
		delete(s.uploads, recordID)
	}
	return nil
}

func (s *InMemoryStore) SaveSection(_ context.Context, data models.SectionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[data.RecordID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.sections[data.RecordID] == nil {
		s.sections[data.RecordID] = make(map[models.Section]models.SectionData)
	}
	data.Payload = slices.Clone(data.Payload)
	s.sections[data.RecordID][data.Section] = data
	return nil
}

func (s *InMemoryStore) ListSections(_ context.Context, recordID id.RecordID) ([]models.SectionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SectionData, 0, len(s.sections[recordID]))
	for _, data := range s.sections[recordID] {
		data.Payload = slices.Clone(data.Payload)
		out = append(out, data)
	}
	slices.SortFunc(out, func(a, b models.SectionData) int {
		return strings.Compare(string(a.Section), string(b.Section))
	})
	return out, nil
}

func (s *InMemoryStore) AddUpload(_ context.Context, upload models.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[upload.RecordID]; !ok {
		return sentinel.ErrNotFound
	}
	s.uploads[upload.RecordID] = append(s.uploads[upload.RecordID], upload)
	return nil
}

func (s *InMemoryStore) ListUploads(_ context.Context, recordID id.RecordID) ([]models.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.uploads[recordID]), nil
}
