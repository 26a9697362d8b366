package memory

import (
	"context"
	"maps"
	"sync"

	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
)

// InMemoryStore keeps events per record in insert order.
type InMemoryStore struct {
	mu     sync.RWMutex
	seq    int64
	events map[id.RecordID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.RecordID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	event.Seq = s.seq
	event.Metadata = maps.Clone(event.Metadata)
	s.events[event.RecordID] = append(s.events[event.RecordID], event)
	return nil
}

func (s *InMemoryStore) ListByRecord(_ context.Context, recordID id.RecordID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[recordID]...), nil
}

// Purge drops the trail of deleted records, mirroring the ON DELETE CASCADE
// of the Postgres schema.
func (s *InMemoryStore) Purge(recordIDs ...id.RecordID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, recordID := range recordIDs {
		delete(s.events, recordID)
	}
}
