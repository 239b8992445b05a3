package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"example.com/backstage/services/ledger/domain"
)

// MemoryEventStore is an in-memory EventStore with the same append semantics
// as the GORM store. Used by tests and local development.
type MemoryEventStore struct {
	mu       sync.Mutex
	events   []domain.Event
	versions map[string]int64
	nextID   int64
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{versions: make(map[string]int64), nextID: 1}
}

// Append commits a single event atomically.
func (s *MemoryEventStore) Append(ctx context.Context, event *domain.Event, expectedVersion int64) error {
	return s.AppendInTx(ctx, func(batch Batch) error {
		return batch.Append(event, expectedVersion)
	})
}

// AppendInTx stages appends and commits them only when fn returns nil.
func (s *MemoryEventStore) AppendInTx(ctx context.Context, fn func(batch Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := &memoryBatch{store: s, versions: make(map[string]int64)}
	if err := fn(batch); err != nil {
		return err
	}

	for i := range batch.staged {
		s.events = append(s.events, batch.staged[i])
	}
	for accountID, version := range batch.versions {
		s.versions[accountID] = version
	}
	s.nextID += int64(len(batch.staged))
	return nil
}

type memoryBatch struct {
	store    *MemoryEventStore
	staged   []domain.Event
	versions map[string]int64
}

func (b *memoryBatch) Append(event *domain.Event, expectedVersion int64) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	last, ok := b.lastEventDate(event.AccountID)
	if ok && !event.EventDate.After(last) {
		return domain.ErrOutOfOrderEvent
	}

	current := b.store.versions[event.AccountID]
	if staged, ok := b.versions[event.AccountID]; ok {
		current = staged
	}
	if current != expectedVersion {
		return domain.ErrConcurrencyConflict
	}
	b.versions[event.AccountID] = expectedVersion + 1

	event.ID = b.store.nextID + int64(len(b.staged))
	event.Version = expectedVersion + 1
	event.Status = domain.StatusPending
	b.staged = append(b.staged, *event)
	return nil
}

func (b *memoryBatch) lastEventDate(accountID string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range b.store.events {
		if e.AccountID == accountID && e.EventDate.After(last) {
			last = e.EventDate
			found = true
		}
	}
	for _, e := range b.staged {
		if e.AccountID == accountID && e.EventDate.After(last) {
			last = e.EventDate
			found = true
		}
	}
	return last, found
}

// EventsAfter returns the account's events after since, ascending.
func (s *MemoryEventStore) EventsAfter(ctx context.Context, accountID string, since time.Time) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Event
	for _, e := range s.events {
		if e.AccountID == accountID && e.EventDate.After(since) {
			out = append(out, e)
		}
	}
	sortAscending(out)
	return out, nil
}

// AllEvents returns the account's full stream, ascending.
func (s *MemoryEventStore) AllEvents(ctx context.Context, accountID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Event
	for _, e := range s.events {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	sortAscending(out)
	return out, nil
}

// EventsByCorrelationID returns the events of one logical transaction.
func (s *MemoryEventStore) EventsByCorrelationID(ctx context.Context, correlationID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Event
	for _, e := range s.events {
		if e.Metadata.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	sortAscending(out)
	return out, nil
}

// EventsByUserID returns a user's events, most recent first.
func (s *MemoryEventStore) EventsByUserID(ctx context.Context, userID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Event
	for _, e := range s.events {
		if e.Metadata.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.After(out[j].EventDate) })
	return out, nil
}

// CountEventsAfter counts the account's events after since.
func (s *MemoryEventStore) CountEventsAfter(ctx context.Context, accountID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, e := range s.events {
		if e.AccountID == accountID && e.EventDate.After(since) {
			count++
		}
	}
	return count, nil
}

// StreamVersion returns the account's current version counter.
func (s *MemoryEventStore) StreamVersion(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[accountID], nil
}

// EventByID returns the stored event, or nil when none exists.
func (s *MemoryEventStore) EventByID(ctx context.Context, eventID int64) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == eventID {
			event := s.events[i]
			return &event, nil
		}
	}
	return nil, nil
}

// MarkStatus records the projection outcome of an event.
func (s *MemoryEventStore) MarkStatus(ctx context.Context, eventID int64, status domain.EventStatus, procErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == eventID {
			s.events[i].Status = status
			s.events[i].Error = nil
			if procErr != "" {
				msg := procErr
				s.events[i].Error = &msg
			}
			return nil
		}
	}
	return errors.Errorf("event %d not found", eventID)
}

func sortAscending(events []domain.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].EventDate.Before(events[j].EventDate) })
}
