package handlers

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/eventstore"
	"example.com/backstage/services/ledger/models"
	"example.com/backstage/services/ledger/readmodel"
	"example.com/backstage/services/ledger/snapshots"
)

// capturingPublisher records what the handler hands to the projection side.
type capturingPublisher struct {
	events []domain.Event
}

func (p *capturingPublisher) Publish(events ...domain.Event) {
	p.events = append(p.events, events...)
}

type handlerFixture struct {
	store     *eventstore.MemoryEventStore
	snapshots *snapshots.MemoryStore
	accounts  *readmodel.MemoryAccountRepository
	published *capturingPublisher
	handler   *AccountHandler
}

func newHandlerFixture(t *testing.T, snapshotThreshold int) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		store:     eventstore.NewMemoryEventStore(),
		snapshots: snapshots.NewMemoryStore(),
		accounts:  readmodel.NewMemoryAccountRepository(),
		published: &capturingPublisher{},
	}
	f.handler = NewAccountHandler(f.store, f.snapshots, f.accounts, f.published, snapshotThreshold)

	// Deterministic, strictly increasing clock.
	tick := time.Unix(1_700_000_000, 0).UTC()
	f.handler.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return f
}

func TestHandleCreateAccount(t *testing.T) {
	f := newHandlerFixture(t, 100)
	ctx := context.Background()

	err := f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", UserID: "user-1"})
	require.NoError(t, err)

	events, err := f.store.AllEvents(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.AccountCreated, events[0].Type)
	require.Equal(t, int64(1), events[0].Version)
	require.NotNil(t, events[0].Amount)
	require.Zero(t, *events[0].Amount)
	require.Equal(t, "user-1", events[0].Metadata.UserID)
	require.NotEmpty(t, events[0].Metadata.CorrelationID)
	require.Nil(t, events[0].Metadata.CausationID)

	require.Len(t, f.published.events, 1)
}

func TestHandleCreateAccountRejectsDuplicate(t *testing.T) {
	f := newHandlerFixture(t, 100)
	ctx := context.Background()

	// The read model already knows the account.
	require.NoError(t, f.accounts.Save(ctx, &models.Account{AccountID: "acc-1"}))

	err := f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", UserID: "user-1"})
	require.ErrorIs(t, err, domain.ErrDuplicateAccount)
}

func TestHandleDeposit(t *testing.T) {
	f := newHandlerFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", UserID: "user-1"}))
	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: 100, UserID: "user-1"}))

	account, err := f.handler.loader.Load(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 100.0, account.Balance)
	require.Equal(t, int64(2), account.Version)
}

func TestHandleDepositRejectsNonPositiveAmounts(t *testing.T) {
	f := newHandlerFixture(t, 100)
	ctx := context.Background()

	err := f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: 0, UserID: "user-1"})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	err = f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: -5, UserID: "user-1"})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestHandleWithdrawRejectsOverdraft(t *testing.T) {
	f := newHandlerFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", UserID: "user-1"}))
	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: 100, UserID: "user-1"}))

	err := f.handler.HandleWithdraw(ctx, WithdrawCommand{AccountID: "acc-1", Amount: 150, UserID: "user-1"})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The rejected withdrawal appended nothing.
	events, err := f.store.AllEvents(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.NoError(t, f.handler.HandleWithdraw(ctx, WithdrawCommand{AccountID: "acc-1", Amount: 60, UserID: "user-1"}))

	account, err := f.handler.loader.Load(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 40.0, account.Balance)
}

func TestHandleTransferLinksBothLegs(t *testing.T) {
	f := newHandlerFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-a", UserID: "user-1"}))
	require.NoError(t, f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-b", UserID: "user-1"}))
	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-a", Amount: 100, UserID: "user-1"}))

	err := f.handler.HandleTransfer(ctx, TransferCommand{
		FromAccountID: "acc-a",
		ToAccountID:   "acc-b",
		Amount:        50,
		UserID:        "user-1",
	})
	require.NoError(t, err)

	from, err := f.handler.loader.Load(ctx, "acc-a")
	require.NoError(t, err)
	require.Equal(t, 50.0, from.Balance)

	to, err := f.handler.loader.Load(ctx, "acc-b")
	require.NoError(t, err)
	require.Equal(t, 50.0, to.Balance)

	// Both legs share a correlation id and the deposit points back at the
	// withdraw through its causation id.
	withdraw := f.published.events[len(f.published.events)-2]
	deposit := f.published.events[len(f.published.events)-1]
	require.Equal(t, domain.MoneyWithdrawn, withdraw.Type)
	require.Equal(t, domain.MoneyDeposited, deposit.Type)
	require.Equal(t, withdraw.Metadata.CorrelationID, deposit.Metadata.CorrelationID)
	require.NotNil(t, deposit.Metadata.CausationID)
	require.Equal(t, strconv.FormatInt(withdraw.ID, 10), *deposit.Metadata.CausationID)

	legs, err := f.store.EventsByCorrelationID(ctx, withdraw.Metadata.CorrelationID)
	require.NoError(t, err)
	require.Len(t, legs, 2)
}

func TestHandleTransferRejectsOverdraft(t *testing.T) {
	f := newHandlerFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-a", UserID: "user-1"}))
	require.NoError(t, f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-b", UserID: "user-1"}))
	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-a", Amount: 30, UserID: "user-1"}))

	err := f.handler.HandleTransfer(ctx, TransferCommand{
		FromAccountID: "acc-a",
		ToAccountID:   "acc-b",
		Amount:        50,
		UserID:        "user-1",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Neither stream moved.
	fromVersion, err := f.store.StreamVersion(ctx, "acc-a")
	require.NoError(t, err)
	require.Equal(t, int64(2), fromVersion)

	toVersion, err := f.store.StreamVersion(ctx, "acc-b")
	require.NoError(t, err)
	require.Equal(t, int64(1), toVersion)
}

func TestSnapshotSavedAtThreshold(t *testing.T) {
	f := newHandlerFixture(t, 3)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", UserID: "user-1"}))
	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: 10, UserID: "user-1"}))

	snapshot, err := f.snapshots.Latest(ctx, "acc-1")
	require.NoError(t, err)
	require.Nil(t, snapshot)

	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: 10, UserID: "user-1"}))

	snapshot, err = f.snapshots.Latest(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Equal(t, 20.0, snapshot.Balance)

	// The snapshot covers every event written so far.
	events, err := f.store.AllEvents(ctx, "acc-1")
	require.NoError(t, err)
	require.False(t, snapshot.SnapshotDate.Before(events[len(events)-1].EventDate))

	// Loading from the snapshot reproduces the folded state.
	account, err := f.handler.loader.Load(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 20.0, account.Balance)
	require.Equal(t, int64(3), account.Version)
}

func TestSnapshotCountResetsAfterSnapshot(t *testing.T) {
	f := newHandlerFixture(t, 3)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleCreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", UserID: "user-1"}))
	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: 10, UserID: "user-1"}))
	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: 10, UserID: "user-1"}))

	first, err := f.snapshots.Latest(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	// One more event is below the threshold again.
	require.NoError(t, f.handler.HandleDeposit(ctx, DepositCommand{AccountID: "acc-1", Amount: 5, UserID: "user-1"}))

	second, err := f.snapshots.Latest(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, first.SnapshotDate, second.SnapshotDate)
}
