package handlers

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/eventstore"
	"example.com/backstage/services/ledger/snapshots"
)

// epoch is the fold origin for accounts without a snapshot.
var epoch = time.Unix(0, 0).UTC()

// AggregateLoader reconstructs an account aggregate from its latest snapshot
// plus the events appended after it. It is a pure function of store contents;
// the snapshot is the only caching involved.
type AggregateLoader struct {
	store     eventstore.EventStore
	snapshots snapshots.Store
}

// NewAggregateLoader creates a new aggregate loader.
func NewAggregateLoader(store eventstore.EventStore, snapshotStore snapshots.Store) *AggregateLoader {
	return &AggregateLoader{store: store, snapshots: snapshotStore}
}

// Load returns the account's current derived state. An account with no
// history loads as an empty aggregate at version zero.
func (l *AggregateLoader) Load(ctx context.Context, accountID string) (*domain.Account, error) {
	snapshot, err := l.snapshots.Latest(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load snapshot")
	}

	account := domain.NewAccount(accountID)
	since := epoch
	if snapshot != nil {
		account.Balance = snapshot.Balance
		account.AsOf = snapshot.SnapshotDate
		since = snapshot.SnapshotDate
	}

	events, err := l.store.EventsAfter(ctx, accountID, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load events")
	}
	for _, event := range events {
		account.ApplyEvent(event)
	}

	version, err := l.store.StreamVersion(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load stream version")
	}
	account.Version = version

	return account, nil
}
