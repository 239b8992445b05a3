package eventstore

import (
	"context"
	"time"

	"example.com/backstage/services/ledger/domain"
)

// Batch appends events inside one atomic unit. Either every event appended
// through a batch commits, or none do. Events appended earlier in the batch
// are visible to the ordering checks of later ones, and their store-assigned
// IDs are populated immediately, so a later event can reference an earlier
// one as its causation.
type Batch interface {
	// Append validates and stages one event. The caller presents the stream
	// version its state was derived from; a stale expected version fails with
	// domain.ErrConcurrencyConflict. On success the event's ID, Version and
	// Status fields are populated.
	Append(event *domain.Event, expectedVersion int64) error
}

// EventStore is the append-only store of account events.
type EventStore interface {
	// Append commits a single event atomically.
	Append(ctx context.Context, event *domain.Event, expectedVersion int64) error

	// AppendInTx runs fn with a Batch whose appends commit atomically when fn
	// returns nil and are discarded entirely when it returns an error.
	AppendInTx(ctx context.Context, fn func(batch Batch) error) error

	// EventsAfter returns the account's events with event date strictly after
	// since, ascending.
	EventsAfter(ctx context.Context, accountID string, since time.Time) ([]domain.Event, error)

	// AllEvents returns the account's full stream, ascending by event date.
	AllEvents(ctx context.Context, accountID string) ([]domain.Event, error)

	// EventsByCorrelationID returns the events of one logical transaction.
	EventsByCorrelationID(ctx context.Context, correlationID string) ([]domain.Event, error)

	// EventsByUserID returns a user's events, most recent first.
	EventsByUserID(ctx context.Context, userID string) ([]domain.Event, error)

	// CountEventsAfter counts the account's events after since.
	CountEventsAfter(ctx context.Context, accountID string, since time.Time) (int64, error)

	// EventByID returns the stored event with its current status, or nil when
	// no such event exists.
	EventByID(ctx context.Context, eventID int64) (*domain.Event, error)

	// StreamVersion returns the account's current version counter, zero for
	// an account with no events.
	StreamVersion(ctx context.Context, accountID string) (int64, error)

	// MarkStatus records the projection outcome of an event. Used only by the
	// projection worker; it never re-validates ordering. procErr carries the
	// terminal failure message for FAILED events and is cleared otherwise.
	MarkStatus(ctx context.Context, eventID int64, status domain.EventStatus, procErr string) error
}
