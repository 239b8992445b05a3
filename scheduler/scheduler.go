package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/ledger/projections"
	"example.com/backstage/services/ledger/readmodel"
)

// ReplayScheduler periodically replays recent events for every known
// account, reconciling anything the projection worker dropped or failed.
type ReplayScheduler struct {
	accounts readmodel.AccountRepository
	worker   *projections.Worker
	interval time.Duration
	lookback time.Duration
	now      func() time.Time
}

// NewReplayScheduler creates a scheduler that replays events from the last
// lookback window every interval.
func NewReplayScheduler(accounts readmodel.AccountRepository, worker *projections.Worker, interval, lookback time.Duration) *ReplayScheduler {
	return &ReplayScheduler{
		accounts: accounts,
		worker:   worker,
		interval: interval,
		lookback: lookback,
		now:      time.Now,
	}
}

// Run schedules periodic replays and blocks until the context is cancelled.
func (s *ReplayScheduler) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "failed to create scheduler")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if err := s.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Replay run failed")
			}
		}),
	)
	if err != nil {
		return errors.Wrap(err, "failed to schedule replay job")
	}

	sched.Start()
	log.Info().
		Dur("interval", s.interval).
		Dur("lookback", s.lookback).
		Msg("Replay scheduler started")

	<-ctx.Done()
	log.Info().Msg("Replay scheduler stopping")
	return sched.Shutdown()
}

// RunOnce replays the lookback window for every account in the read model.
// A failing account is logged and skipped so the others still reconcile.
func (s *ReplayScheduler) RunOnce(ctx context.Context) error {
	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list accounts for replay")
	}

	since := s.now().Add(-s.lookback)
	failed := 0
	for _, account := range accounts {
		if err := s.worker.Replay(ctx, account.AccountID, since, false); err != nil {
			failed++
			log.Error().
				Err(err).
				Str("accountID", account.AccountID).
				Msg("Account replay failed")
		}
	}

	log.Info().
		Int("accounts", len(accounts)).
		Int("failed", failed).
		Time("since", since).
		Msg("Replay run finished")
	return nil
}
