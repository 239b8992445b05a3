package domain

import "time"

// Account is the write-side aggregate: the balance of one account stream as
// derived from its events. No row exists for it anywhere; it is always
// reconstructed from the latest snapshot plus the events after it.
type Account struct {
	AccountID string
	Balance   float64
	AsOf      time.Time
	// Version is the stream's optimistic-lock token at load time. An append
	// based on this state must present it as the expected version.
	Version int64
}

// NewAccount returns an empty aggregate for an account with no history.
func NewAccount(accountID string) *Account {
	return &Account{AccountID: accountID}
}

// ApplyEvent folds one event into the aggregate state.
func (a *Account) ApplyEvent(event Event) {
	a.Balance += event.BalanceDelta()
	a.AsOf = event.EventDate
}

// CheckWithdrawable verifies the balance covers a withdrawal of amount.
func (a *Account) CheckWithdrawable(amount float64) error {
	if a.Balance < amount {
		return ErrInsufficientFunds
	}
	return nil
}
