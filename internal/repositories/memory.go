package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/spotstats/internal/models"
	"github.com/desertthunder/spotstats/internal/shared"
)

type memoryEntry struct {
	record   *models.TokenRecord
	storedAt time.Time
}

// MemoryStore implements [TokenStore] with an in-process map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A zero ttl keeps records until cleared.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, record *models.TokenRecord) error {
	if err := validatePut(sessionID, record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{record: cloneRecord(record), storedAt: s.now()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*models.TokenRecord, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()

	if !ok || stale(entry.storedAt, s.now(), s.ttl) {
		return nil, shared.ErrSessionNotFound
	}
	return cloneRecord(entry.record), nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

func (s *MemoryStore) Prune(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, entry := range s.entries {
		if stale(entry.storedAt, now, s.ttl) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, stale ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
