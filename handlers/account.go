package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/eventstore"
	"example.com/backstage/services/ledger/models"
	"example.com/backstage/services/ledger/readmodel"
	"example.com/backstage/services/ledger/snapshots"
)

// Command structs
type CreateAccountCommand struct {
	AccountID string `json:"account_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
}

type DepositCommand struct {
	AccountID string  `json:"account_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	UserID    string  `json:"user_id" binding:"required"`
}

type WithdrawCommand struct {
	AccountID string  `json:"account_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	UserID    string  `json:"user_id" binding:"required"`
}

type TransferCommand struct {
	FromAccountID string  `json:"from_account_id" binding:"required"`
	ToAccountID   string  `json:"to_account_id" binding:"required"`
	Amount        float64 `json:"amount" binding:"required"`
	UserID        string  `json:"user_id" binding:"required"`
}

// EventPublisher hands committed events to the projection worker. Publication
// happens only after the owning append has durably committed.
type EventPublisher interface {
	Publish(events ...domain.Event)
}

// AccountHandler processes all account commands: it loads the aggregate,
// validates the command against derived state, appends the resulting events
// and hands them to the projection worker.
type AccountHandler struct {
	store             eventstore.EventStore
	snapshots         snapshots.Store
	accounts          readmodel.AccountRepository
	loader            *AggregateLoader
	publisher         EventPublisher
	snapshotThreshold int64
	now               func() time.Time
}

// NewAccountHandler creates a new account command handler.
func NewAccountHandler(
	store eventstore.EventStore,
	snapshotStore snapshots.Store,
	accounts readmodel.AccountRepository,
	publisher EventPublisher,
	snapshotThreshold int,
) *AccountHandler {
	return &AccountHandler{
		store:             store,
		snapshots:         snapshotStore,
		accounts:          accounts,
		loader:            NewAggregateLoader(store, snapshotStore),
		publisher:         publisher,
		snapshotThreshold: int64(snapshotThreshold),
		now:               time.Now,
	}
}

// HandleCreateAccount opens a new account stream.
func (h *AccountHandler) HandleCreateAccount(ctx context.Context, cmd CreateAccountCommand) error {
	log.Info().Str("accountID", cmd.AccountID).Msg("Handling CreateAccount command")

	exists, err := h.accounts.Exists(ctx, cmd.AccountID)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicateAccount
	}

	metadata := domain.NewEventMetadata(uuid.New().String(), nil, cmd.UserID)
	event := domain.NewAccountCreatedEvent(cmd.AccountID, h.now(), metadata)

	if err := h.store.Append(ctx, &event, 0); err != nil {
		return err
	}

	h.publisher.Publish(event)
	h.checkAndSaveSnapshot(ctx, cmd.AccountID)
	return nil
}

// HandleDeposit adds money to an account.
func (h *AccountHandler) HandleDeposit(ctx context.Context, cmd DepositCommand) error {
	log.Info().Str("accountID", cmd.AccountID).Msg("Handling Deposit command")

	if cmd.Amount <= 0 {
		return domain.ErrInvalidAmount
	}

	// Loaded for symmetry with the other commands; deposits need no balance
	// check, but the stream version gates the append.
	account, err := h.loader.Load(ctx, cmd.AccountID)
	if err != nil {
		return err
	}

	metadata := domain.NewEventMetadata(uuid.New().String(), nil, cmd.UserID)
	event := domain.NewMoneyDepositedEvent(cmd.AccountID, h.now(), cmd.Amount, metadata)

	if err := h.store.Append(ctx, &event, account.Version); err != nil {
		return err
	}

	h.publisher.Publish(event)
	h.checkAndSaveSnapshot(ctx, cmd.AccountID)
	return nil
}

// HandleWithdraw removes money from an account.
func (h *AccountHandler) HandleWithdraw(ctx context.Context, cmd WithdrawCommand) error {
	log.Info().Str("accountID", cmd.AccountID).Msg("Handling Withdraw command")

	if cmd.Amount <= 0 {
		return domain.ErrInvalidAmount
	}

	account, err := h.loader.Load(ctx, cmd.AccountID)
	if err != nil {
		return err
	}
	if err := account.CheckWithdrawable(cmd.Amount); err != nil {
		return err
	}

	metadata := domain.NewEventMetadata(uuid.New().String(), nil, cmd.UserID)
	event := domain.NewMoneyWithdrawnEvent(cmd.AccountID, h.now(), cmd.Amount, metadata)

	if err := h.store.Append(ctx, &event, account.Version); err != nil {
		return err
	}

	h.publisher.Publish(event)
	h.checkAndSaveSnapshot(ctx, cmd.AccountID)
	return nil
}

// HandleTransfer moves money between two accounts as one logical transaction:
// a withdraw on the source and a deposit on the destination sharing one
// correlation id, with the deposit caused by the withdraw. Both events append
// in one atomic unit; a conflict on either side commits neither.
func (h *AccountHandler) HandleTransfer(ctx context.Context, cmd TransferCommand) error {
	log.Info().
		Str("fromAccountID", cmd.FromAccountID).
		Str("toAccountID", cmd.ToAccountID).
		Msg("Handling Transfer command")

	if cmd.Amount <= 0 {
		return domain.ErrInvalidAmount
	}

	from, err := h.loader.Load(ctx, cmd.FromAccountID)
	if err != nil {
		return err
	}
	if err := from.CheckWithdrawable(cmd.Amount); err != nil {
		return err
	}

	toVersion, err := h.store.StreamVersion(ctx, cmd.ToAccountID)
	if err != nil {
		return err
	}

	correlationID := uuid.New().String()
	withdrawMetadata := domain.NewEventMetadata(correlationID, nil, cmd.UserID)
	withdrawEvent := domain.NewMoneyWithdrawnEvent(cmd.FromAccountID, h.now(), cmd.Amount, withdrawMetadata)

	var depositEvent domain.Event
	err = h.store.AppendInTx(ctx, func(batch eventstore.Batch) error {
		if err := batch.Append(&withdrawEvent, from.Version); err != nil {
			return err
		}

		// The withdraw's store-assigned id becomes the deposit's causation.
		causationID := strconv.FormatInt(withdrawEvent.ID, 10)
		depositMetadata := domain.NewEventMetadata(correlationID, &causationID, cmd.UserID)
		depositEvent = domain.NewMoneyDepositedEvent(cmd.ToAccountID, h.now(), cmd.Amount, depositMetadata)

		return batch.Append(&depositEvent, toVersion)
	})
	if err != nil {
		return err
	}

	h.publisher.Publish(withdrawEvent, depositEvent)
	h.checkAndSaveSnapshot(ctx, cmd.FromAccountID)
	h.checkAndSaveSnapshot(ctx, cmd.ToAccountID)
	return nil
}

// checkAndSaveSnapshot writes a fresh snapshot once enough events have
// accumulated since the last one. Failures only raise future read cost, so
// they are logged and never fail the command.
func (h *AccountHandler) checkAndSaveSnapshot(ctx context.Context, accountID string) {
	snapshot, err := h.snapshots.Latest(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Str("accountID", accountID).Msg("Failed to load snapshot for policy check")
		return
	}

	since := epoch
	if snapshot != nil {
		since = snapshot.SnapshotDate
	}

	count, err := h.store.CountEventsAfter(ctx, accountID, since)
	if err != nil {
		log.Error().Err(err).Str("accountID", accountID).Msg("Failed to count events for snapshot policy")
		return
	}
	if count < h.snapshotThreshold {
		return
	}

	account, err := h.loader.Load(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Str("accountID", accountID).Msg("Failed to load aggregate for snapshot")
		return
	}

	err = h.snapshots.Save(ctx, &models.AccountSnapshot{
		AccountID:    accountID,
		Balance:      account.Balance,
		SnapshotDate: h.now(),
	})
	if err != nil {
		log.Error().Err(err).Str("accountID", accountID).Msg("Failed to save snapshot")
		return
	}

	log.Info().
		Str("accountID", accountID).
		Float64("balance", account.Balance).
		Msg("Snapshot saved")
}
