package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/ledger/api"
	"example.com/backstage/services/ledger/handlers"
	"example.com/backstage/services/ledger/scheduler"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long:  `Start the API server together with the in-process projection worker and replay scheduler`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	configureLogging(cfg)
	log.Info().Msg("Starting server")

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	// Initialize command and query sides
	accountHandler := handlers.NewAccountHandler(comp.store, comp.snapshots, comp.accounts, comp.worker, cfg.SnapshotThreshold)
	queryService := handlers.NewQueryService(comp.store, comp.accounts, comp.cache)

	// Initialize replay scheduler as the reconciliation fallback
	replayScheduler := scheduler.NewReplayScheduler(comp.accounts, comp.worker, cfg.ReplayInterval, cfg.ReplayLookback)

	// Initialize server
	server := api.NewServer(cfg, accountHandler, queryService, comp.worker)

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

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := comp.publisher.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to close publisher")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("Server exited properly")
	return nil
}
