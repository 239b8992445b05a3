package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/eventstore"
	"example.com/backstage/services/ledger/models"
	"example.com/backstage/services/ledger/readmodel"
)

func TestGetBalanceFromReadModel(t *testing.T) {
	store := eventstore.NewMemoryEventStore()
	accounts := readmodel.NewMemoryAccountRepository()
	service := NewQueryService(store, accounts, nil)
	ctx := context.Background()

	require.NoError(t, accounts.Save(ctx, &models.Account{AccountID: "acc-1", Balance: 75}))

	balance, err := service.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, 75.0, balance)
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	store := eventstore.NewMemoryEventStore()
	accounts := readmodel.NewMemoryAccountRepository()
	service := NewQueryService(store, accounts, nil)

	_, err := service.GetBalance(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAccountNotFoundInReadModel)

	_, err = service.GetAccountDetail(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAccountNotFoundInReadModel)
}

func TestGetHistoryAndActiveAccounts(t *testing.T) {
	store := eventstore.NewMemoryEventStore()
	accounts := readmodel.NewMemoryAccountRepository()
	service := NewQueryService(store, accounts, nil)
	ctx := context.Background()

	metadata := domain.NewEventMetadata("corr-1", nil, "user-1")
	created := domain.NewAccountCreatedEvent("acc-1", time.Unix(1000, 0), metadata)
	require.NoError(t, store.Append(ctx, &created, 0))
	deposit := domain.NewMoneyDepositedEvent("acc-1", time.Unix(2000, 0), 50, metadata)
	require.NoError(t, store.Append(ctx, &deposit, 1))

	require.NoError(t, accounts.Save(ctx, &models.Account{AccountID: "acc-1", Balance: 50}))
	require.NoError(t, accounts.Save(ctx, &models.Account{AccountID: "acc-2", Balance: 0}))

	history, err := service.GetHistory(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.AccountCreated, history[0].Type)

	byCorrelation, err := service.GetTransactionsByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	require.Len(t, byCorrelation, 2)

	byUser, err := service.GetTransactionsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	require.Equal(t, domain.MoneyDeposited, byUser[0].Type)

	ids, err := service.GetActiveAccountIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"acc-1", "acc-2"}, ids)
}
