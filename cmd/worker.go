package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/ledger/scheduler"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the projection worker",
	Long:  `Start the standalone projection worker that replays stored events into the read model on a schedule`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	configureLogging(cfg)
	log.Info().Msg("Starting worker")

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	replayScheduler := scheduler.NewReplayScheduler(comp.accounts, comp.worker, cfg.ReplayInterval, cfg.ReplayLookback)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := comp.worker.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return replayScheduler.Run(ctx)
	})

	// Reconcile once on startup so the worker catches up immediately
	g.Go(func() error {
		if err := replayScheduler.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("Startup replay failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("Worker exited properly")
	return nil
}
