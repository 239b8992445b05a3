package snapshots

import (
	"context"
	"sync"

	"example.com/backstage/services/ledger/models"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]models.AccountSnapshot
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]models.AccountSnapshot)}
}

// Latest returns the account's snapshot, or nil when none exists.
func (s *MemoryStore) Latest(ctx context.Context, accountID string) (*models.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[accountID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

// Save upserts the account's snapshot.
func (s *MemoryStore) Save(ctx context.Context, snapshot *models.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.AccountID] = *snapshot
	return nil
}
