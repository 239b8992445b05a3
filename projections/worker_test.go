package projections

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/eventstore"
	"example.com/backstage/services/ledger/readmodel"
)

type workerFixture struct {
	store    *eventstore.MemoryEventStore
	accounts *readmodel.MemoryAccountRepository
	worker   *Worker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	store := eventstore.NewMemoryEventStore()
	accounts := readmodel.NewMemoryAccountRepository()
	projector := NewAccountProjector(accounts, nil, nil)
	worker := NewWorker(store, projector, nil, fastRetryPolicy(2), 16)
	return &workerFixture{store: store, accounts: accounts, worker: worker}
}

func appendEvent(t *testing.T, store *eventstore.MemoryEventStore, event domain.Event, expectedVersion int64) domain.Event {
	t.Helper()
	require.NoError(t, store.Append(context.Background(), &event, expectedVersion))
	return event
}

func TestProcessEventProjectsAndMarksProcessed(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")

	created := appendEvent(t, f.store, domain.NewAccountCreatedEvent("acc-1", time.Unix(1000, 0), metadata), 0)
	require.NoError(t, f.worker.ProcessEvent(ctx, created))

	deposit := appendEvent(t, f.store, domain.NewMoneyDepositedEvent("acc-1", time.Unix(2000, 0), 50, metadata), 1)
	require.NoError(t, f.worker.ProcessEvent(ctx, deposit))

	withdraw := appendEvent(t, f.store, domain.NewMoneyWithdrawnEvent("acc-1", time.Unix(3000, 0), 20, metadata), 2)
	require.NoError(t, f.worker.ProcessEvent(ctx, withdraw))

	account, err := f.accounts.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, 30.0, account.Balance)
	require.Equal(t, time.Unix(3000, 0), account.LastEventDate)

	events, err := f.store.AllEvents(ctx, "acc-1")
	require.NoError(t, err)
	for _, e := range events {
		require.Equal(t, domain.StatusProcessed, e.Status)
	}
}

func TestProcessEventMarksFailedWhenRetriesExhaust(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")

	// A deposit for an account the read model has never seen cannot project.
	deposit := appendEvent(t, f.store, domain.NewMoneyDepositedEvent("acc-1", time.Unix(1000, 0), 50, metadata), 0)

	err := f.worker.ProcessEvent(ctx, deposit)
	require.Error(t, err)

	var handlingErr *domain.EventHandlingError
	require.ErrorAs(t, err, &handlingErr)
	require.Equal(t, deposit.ID, handlingErr.EventID)
	require.ErrorIs(t, err, domain.ErrAccountNotFoundInReadModel)

	events, err := f.store.AllEvents(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, events[0].Status)
	require.NotNil(t, events[0].Error)
	require.Contains(t, *events[0].Error, "account not found")
}

func TestProcessEventSkipsStaleQueuedCopy(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")

	created := appendEvent(t, f.store, domain.NewAccountCreatedEvent("acc-1", time.Unix(1000, 0), metadata), 0)
	require.NoError(t, f.worker.ProcessEvent(ctx, created))

	// The deposit's copy sits in the live channel while the replay path
	// projects it first.
	deposit := appendEvent(t, f.store, domain.NewMoneyDepositedEvent("acc-1", time.Unix(2000, 0), 50, metadata), 1)
	require.NoError(t, f.worker.Replay(ctx, "acc-1", time.Time{}, false))

	account, err := f.accounts.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 50.0, account.Balance)

	// The live consumer then dequeues the stale copy, still marked PENDING.
	// The stored event is already PROCESSED, so the delta must not re-apply.
	require.Equal(t, domain.StatusPending, deposit.Status)
	require.NoError(t, f.worker.ProcessEvent(ctx, deposit))

	account, err = f.accounts.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 50.0, account.Balance)
}

func TestConcurrentLiveAndReplayApplyOnce(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")

	created := appendEvent(t, f.store, domain.NewAccountCreatedEvent("acc-1", time.Unix(1000, 0), metadata), 0)
	require.NoError(t, f.worker.ProcessEvent(ctx, created))
	deposit := appendEvent(t, f.store, domain.NewMoneyDepositedEvent("acc-1", time.Unix(2000, 0), 50, metadata), 1)

	done := make(chan error, 2)
	go func() { done <- f.worker.ProcessEvent(ctx, deposit) }()
	go func() { done <- f.worker.Replay(ctx, "acc-1", time.Time{}, false) }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	account, err := f.accounts.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 50.0, account.Balance)
}

func TestReplaySkipsProcessedEvents(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")

	created := appendEvent(t, f.store, domain.NewAccountCreatedEvent("acc-1", time.Unix(1000, 0), metadata), 0)
	appendEvent(t, f.store, domain.NewMoneyDepositedEvent("acc-1", time.Unix(2000, 0), 50, metadata), 1)

	// The created event already made it into the read model.
	require.NoError(t, f.worker.ProcessEvent(ctx, created))

	require.NoError(t, f.worker.Replay(ctx, "acc-1", time.Time{}, false))

	account, err := f.accounts.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 50.0, account.Balance)

	// Replaying again without force changes nothing.
	require.NoError(t, f.worker.Replay(ctx, "acc-1", time.Time{}, false))
	account, err = f.accounts.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 50.0, account.Balance)
}

func TestReplayForceReappliesProcessedEvents(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")

	created := appendEvent(t, f.store, domain.NewAccountCreatedEvent("acc-1", time.Unix(1000, 0), metadata), 0)
	appendEvent(t, f.store, domain.NewMoneyDepositedEvent("acc-1", time.Unix(2000, 0), 50, metadata), 1)
	require.NoError(t, f.worker.ProcessEvent(ctx, created))
	require.NoError(t, f.worker.Replay(ctx, "acc-1", time.Time{}, false))

	// Force re-folds everything from the created event's clean slate.
	require.NoError(t, f.worker.Replay(ctx, "acc-1", time.Time{}, true))

	account, err := f.accounts.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 50.0, account.Balance)
}

func TestReplayStopsAtFirstFailure(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")

	// No created event in the read model, so the first deposit fails and the
	// second must never apply.
	appendEvent(t, f.store, domain.NewMoneyDepositedEvent("acc-1", time.Unix(1000, 0), 50, metadata), 0)
	appendEvent(t, f.store, domain.NewMoneyDepositedEvent("acc-1", time.Unix(2000, 0), 30, metadata), 1)

	err := f.worker.Replay(ctx, "acc-1", time.Time{}, false)
	require.Error(t, err)

	var replayErr *domain.EventReplayError
	require.ErrorAs(t, err, &replayErr)
	require.Equal(t, "acc-1", replayErr.AccountID)

	events, err := f.store.AllEvents(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, events[0].Status)
	require.Equal(t, domain.StatusPending, events[1].Status)
}

func TestPublishAndRunProjectsAsync(t *testing.T) {
	f := newWorkerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.worker.Run(ctx)
	}()

	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")
	created := appendEvent(t, f.store, domain.NewAccountCreatedEvent("acc-1", time.Unix(1000, 0), metadata), 0)
	f.worker.Publish(created)

	require.Eventually(t, func() bool {
		account, err := f.accounts.FindByID(context.Background(), "acc-1")
		return err == nil && account != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
