package handlers

import (
	"context"

	"github.com/rs/zerolog/log"

	"example.com/backstage/services/ledger/cache"
	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/eventstore"
	"example.com/backstage/services/ledger/models"
	"example.com/backstage/services/ledger/readmodel"
)

// QueryService answers the read side: balances come from the read model
// (optionally cached), transaction history from the event store.
type QueryService struct {
	store    eventstore.EventStore
	accounts readmodel.AccountRepository
	cache    *cache.RedisCache
}

// NewQueryService creates a new query service. The cache may be nil.
func NewQueryService(store eventstore.EventStore, accounts readmodel.AccountRepository, redisCache *cache.RedisCache) *QueryService {
	return &QueryService{store: store, accounts: accounts, cache: redisCache}
}

// GetBalance returns the account's read-model balance.
func (s *QueryService) GetBalance(ctx context.Context, accountID string) (float64, error) {
	if balance, ok := s.cache.GetBalance(ctx, accountID); ok {
		return balance, nil
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, domain.ErrAccountNotFoundInReadModel
	}

	if err := s.cache.SetBalance(ctx, accountID, account.Balance); err != nil {
		log.Warn().Err(err).Str("accountID", accountID).Msg("Failed to cache balance")
	}
	return account.Balance, nil
}

// GetAccountDetail returns the account's read-model row.
func (s *QueryService) GetAccountDetail(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFoundInReadModel
	}
	return account, nil
}

// GetHistory returns the account's full event stream, oldest first.
func (s *QueryService) GetHistory(ctx context.Context, accountID string) ([]domain.Event, error) {
	return s.store.AllEvents(ctx, accountID)
}

// GetTransactionsByUser returns a user's events, most recent first.
func (s *QueryService) GetTransactionsByUser(ctx context.Context, userID string) ([]domain.Event, error) {
	return s.store.EventsByUserID(ctx, userID)
}

// GetTransactionsByCorrelation returns the events of one logical transaction.
func (s *QueryService) GetTransactionsByCorrelation(ctx context.Context, correlationID string) ([]domain.Event, error) {
	return s.store.EventsByCorrelationID(ctx, correlationID)
}

// GetActiveAccountIDs lists the accounts known to the read model.
func (s *QueryService) GetActiveAccountIDs(ctx context.Context) ([]string, error) {
	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(accounts))
	for i, account := range accounts {
		ids[i] = account.AccountID
	}
	return ids, nil
}
