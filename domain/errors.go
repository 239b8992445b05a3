package domain

import "errors"

// Command validation errors. These fail fast with no side effects and are not
// retryable without the caller changing its input.
var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateAccount  = errors.New("account already exists")
)

// Store-level integrity errors. These abort the whole command; no partial
// event set is ever committed.
var (
	ErrOutOfOrderEvent = errors.New("event date is not after the last event for the account")
	ErrInvalidEvent    = errors.New("event is missing required fields")
)

// ErrConcurrencyConflict is an optimistic-lock failure: a concurrent writer
// won the version slot. Surfaced to the command caller as retryable.
var ErrConcurrencyConflict = errors.New("concurrent modification of account stream")

// ErrAccountNotFoundInReadModel signals a projection applied out of order:
// a balance change arrived before the account's created event was projected.
var ErrAccountNotFoundInReadModel = errors.New("account not found in read model")

// EventHandlingError wraps a projection failure after the retry budget is
// exhausted. The event has been marked FAILED by the time this is returned.
type EventHandlingError struct {
	EventID int64
	Err     error
}

func (e *EventHandlingError) Error() string {
	return "event handling failed: " + e.Err.Error()
}

func (e *EventHandlingError) Unwrap() error { return e.Err }

// EventReplayError wraps a failure to replay a specific event. The scheduler
// logs these per account and carries on with the remaining accounts.
type EventReplayError struct {
	AccountID string
	EventID   int64
	Err       error
}

func (e *EventReplayError) Error() string {
	return "event replay failed for account " + e.AccountID + ": " + e.Err.Error()
}

func (e *EventReplayError) Unwrap() error { return e.Err }
