package domain

import (
	"time"
)

// EventType constants
const (
	AccountCreated = "V1_ACCOUNT_CREATED"
	MoneyDeposited = "V1_MONEY_DEPOSITED"
	MoneyWithdrawn = "V1_MONEY_WITHDRAWN"
)

// EventStatus tracks the projection lifecycle of a stored event.
type EventStatus string

const (
	StatusPending   EventStatus = "PENDING"
	StatusProcessed EventStatus = "PROCESSED"
	StatusFailed    EventStatus = "FAILED"
)

// SchemaVersion identifies the serialization schema of an event's payload.
type SchemaVersion string

const (
	SchemaV1_0 SchemaVersion = "1.0"
	SchemaV1_1 SchemaVersion = "1.1"
)

// KnownSchemaVersion reports whether v is a version this service can read.
func KnownSchemaVersion(v SchemaVersion) bool {
	switch v {
	case SchemaV1_0, SchemaV1_1:
		return true
	}
	return false
}

// EventMetadata carries the transactional context of an event.
// CorrelationID groups events belonging to one logical transaction (both legs
// of a transfer share one); CausationID links an event to the prior event that
// caused it (the deposit leg of a transfer points at the withdraw leg).
type EventMetadata struct {
	CorrelationID string        `json:"correlation_id"`
	CausationID   *string       `json:"causation_id,omitempty"`
	UserID        string        `json:"user_id"`
	SchemaVersion SchemaVersion `json:"schema_version"`
}

// NewEventMetadata creates metadata at the current schema version.
func NewEventMetadata(correlationID string, causationID *string, userID string) EventMetadata {
	return EventMetadata{
		CorrelationID: correlationID,
		CausationID:   causationID,
		UserID:        userID,
		SchemaVersion: SchemaV1_0,
	}
}

// Event is a single immutable fact in an account's stream. ID and Version are
// assigned by the event store at append time; Status and Error are the only
// fields that may change after append, and only for projection bookkeeping.
type Event struct {
	ID        int64         `json:"id"`
	AccountID string        `json:"account_id"`
	Type      string        `json:"type"`
	Amount    *float64      `json:"amount,omitempty"`
	EventDate time.Time     `json:"event_date"`
	Status    EventStatus   `json:"status"`
	// Error holds the terminal projection failure message for FAILED events.
	Error    *string       `json:"error,omitempty"`
	Version  int64         `json:"version"`
	Metadata EventMetadata `json:"metadata"`
}

// NewAccountCreatedEvent builds the opening event of an account stream.
// The amount is always zero; accounts open empty.
func NewAccountCreatedEvent(accountID string, eventDate time.Time, metadata EventMetadata) Event {
	zero := 0.0
	return Event{
		AccountID: accountID,
		Type:      AccountCreated,
		Amount:    &zero,
		EventDate: eventDate,
		Status:    StatusPending,
		Metadata:  metadata,
	}
}

// NewMoneyDepositedEvent builds a deposit event.
func NewMoneyDepositedEvent(accountID string, eventDate time.Time, amount float64, metadata EventMetadata) Event {
	return Event{
		AccountID: accountID,
		Type:      MoneyDeposited,
		Amount:    &amount,
		EventDate: eventDate,
		Status:    StatusPending,
		Metadata:  metadata,
	}
}

// NewMoneyWithdrawnEvent builds a withdrawal event.
func NewMoneyWithdrawnEvent(accountID string, eventDate time.Time, amount float64, metadata EventMetadata) Event {
	return Event{
		AccountID: accountID,
		Type:      MoneyWithdrawn,
		Amount:    &amount,
		EventDate: eventDate,
		Status:    StatusPending,
		Metadata:  metadata,
	}
}

// BalanceDelta returns the signed effect of the event on the account balance.
func (e Event) BalanceDelta() float64 {
	if e.Amount == nil {
		return 0
	}
	switch e.Type {
	case MoneyDeposited:
		return *e.Amount
	case MoneyWithdrawn:
		return -*e.Amount
	default:
		return 0
	}
}
