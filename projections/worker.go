package projections

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/eventstore"
	"example.com/backstage/services/ledger/messaging"
)

// Worker consumes committed events from an in-process channel and applies
// them to the read model. The live channel and the replay path both project
// through the same per-account lock, so an event can reach the read model
// from either side but never from both.
type Worker struct {
	store     eventstore.EventStore
	projector *AccountProjector
	publisher *messaging.Publisher
	retry     RetryPolicy
	ch        chan domain.Event
	locks     sync.Map
}

// NewWorker creates a projection worker with the given channel capacity.
func NewWorker(store eventstore.EventStore, projector *AccountProjector, publisher *messaging.Publisher, retry RetryPolicy, bufferSize int) *Worker {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Worker{
		store:     store,
		projector: projector,
		publisher: publisher,
		retry:     retry,
		ch:        make(chan domain.Event, bufferSize),
	}
}

func (w *Worker) accountLock(accountID string) *sync.Mutex {
	lock, _ := w.locks.LoadOrStore(accountID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Publish enqueues committed events for projection. It never blocks the
// command path: when the buffer is full the event is dropped here and picked
// up later by the replay scheduler.
func (w *Worker) Publish(events ...domain.Event) {
	for _, event := range events {
		select {
		case w.ch <- event:
		default:
			log.Warn().
				Int64("eventID", event.ID).
				Str("accountID", event.AccountID).
				Msg("Projection buffer full, leaving event for replay")
		}
	}
}

// Run consumes events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Msg("Projection worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Projection worker stopping")
			return ctx.Err()
		case event := <-w.ch:
			if err := w.ProcessEvent(ctx, event); err != nil {
				log.Error().Err(err).Int64("eventID", event.ID).Msg("Event projection failed")
			}
		}
	}
}

// ProcessEvent projects one event with retries and records the outcome on
// the event row. Events whose stored status is already PROCESSED are skipped;
// a replay may have projected them while this copy sat in the channel.
func (w *Worker) ProcessEvent(ctx context.Context, event domain.Event) error {
	return w.process(ctx, event, false)
}

func (w *Worker) process(ctx context.Context, event domain.Event, force bool) error {
	lock := w.accountLock(event.AccountID)
	lock.Lock()
	defer lock.Unlock()

	// The queued copy may be stale; the stored status is the source of truth.
	current, err := w.store.EventByID(ctx, event.ID)
	if err != nil {
		return &domain.EventHandlingError{EventID: event.ID, Err: err}
	}
	if current == nil {
		return &domain.EventHandlingError{EventID: event.ID, Err: errors.Errorf("event %d not found", event.ID)}
	}
	if current.Status == domain.StatusProcessed && !force {
		log.Debug().Int64("eventID", event.ID).Msg("Event already processed, skipping")
		return nil
	}

	err = w.retry.Do(ctx, func() error {
		return w.projector.Project(ctx, *current)
	})
	if err != nil {
		if markErr := w.store.MarkStatus(ctx, current.ID, domain.StatusFailed, err.Error()); markErr != nil {
			log.Error().Err(markErr).Int64("eventID", current.ID).Msg("Failed to mark event FAILED")
		}
		return &domain.EventHandlingError{EventID: current.ID, Err: err}
	}

	if err := w.store.MarkStatus(ctx, current.ID, domain.StatusProcessed, ""); err != nil {
		log.Error().Err(err).Int64("eventID", current.ID).Msg("Failed to mark event PROCESSED")
	}
	if err := w.publisher.PublishProcessed(ctx, *current); err != nil {
		log.Warn().Err(err).Int64("eventID", current.ID).Msg("Failed to publish processed-event notification")
	}
	return nil
}

// Replay reprocesses an account's events after since, oldest first. Events
// already PROCESSED are skipped unless force is set. The first failure stops
// the account's replay so later events never apply out of order.
func (w *Worker) Replay(ctx context.Context, accountID string, since time.Time, force bool) error {
	events, err := w.store.EventsAfter(ctx, accountID, since)
	if err != nil {
		return &domain.EventReplayError{AccountID: accountID, Err: err}
	}

	replayed := 0
	for _, event := range events {
		if event.Status == domain.StatusProcessed && !force {
			continue
		}
		if err := w.process(ctx, event, force); err != nil {
			return &domain.EventReplayError{AccountID: accountID, EventID: event.ID, Err: err}
		}
		replayed++
	}

	if replayed > 0 {
		log.Info().
			Str("accountID", accountID).
			Int("count", replayed).
			Msg("Replayed events")
	}
	return nil
}
