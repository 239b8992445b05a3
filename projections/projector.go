package projections

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/ledger/cache"
	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/models"
	"example.com/backstage/services/ledger/readmodel"
	"example.com/backstage/services/ledger/search"
)

// AccountProjector folds ledger events into the account read model and
// keeps the balance cache and search index in step. Cache and search
// failures are logged but never fail the projection.
type AccountProjector struct {
	accounts readmodel.AccountRepository
	cache    *cache.RedisCache
	search   *search.Client
}

// NewAccountProjector creates a projector. Cache and search may be nil.
func NewAccountProjector(accounts readmodel.AccountRepository, redisCache *cache.RedisCache, searchClient *search.Client) *AccountProjector {
	return &AccountProjector{accounts: accounts, cache: redisCache, search: searchClient}
}

// Project applies one event to the read model.
func (p *AccountProjector) Project(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.AccountCreated:
		if err := p.projectCreated(ctx, event); err != nil {
			return err
		}
	case domain.MoneyDeposited, domain.MoneyWithdrawn:
		if err := p.projectBalanceChange(ctx, event); err != nil {
			return err
		}
	default:
		log.Warn().Str("type", event.Type).Int64("eventID", event.ID).Msg("Skipping event of unknown type")
		return nil
	}

	p.refreshSideEffects(ctx, event)
	return nil
}

func (p *AccountProjector) projectCreated(ctx context.Context, event domain.Event) error {
	balance := 0.0
	if event.Amount != nil {
		balance = *event.Amount
	}
	account := &models.Account{
		AccountID:     event.AccountID,
		Balance:       balance,
		LastEventDate: event.EventDate,
	}
	return errors.Wrap(p.accounts.Save(ctx, account), "saving created account")
}

func (p *AccountProjector) projectBalanceChange(ctx context.Context, event domain.Event) error {
	account, err := p.accounts.FindByID(ctx, event.AccountID)
	if err != nil {
		return errors.Wrap(err, "loading account for projection")
	}
	if account == nil {
		return errors.Wrap(domain.ErrAccountNotFoundInReadModel, event.AccountID)
	}

	account.Balance += event.BalanceDelta()
	account.LastEventDate = event.EventDate
	return errors.Wrap(p.accounts.Save(ctx, account), "saving projected balance")
}

func (p *AccountProjector) refreshSideEffects(ctx context.Context, event domain.Event) {
	account, err := p.accounts.FindByID(ctx, event.AccountID)
	if err != nil || account == nil {
		log.Warn().Err(err).Str("accountID", event.AccountID).Msg("Skipping cache refresh after projection")
	} else if err := p.cache.SetBalance(ctx, account.AccountID, account.Balance); err != nil {
		log.Warn().Err(err).Str("accountID", account.AccountID).Msg("Failed to refresh cached balance")
	}

	if err := p.search.IndexEvent(ctx, event); err != nil {
		log.Warn().Err(err).Int64("eventID", event.ID).Msg("Failed to index event")
	}
}
