package cmd

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/backstage/services/ledger/cache"
	"example.com/backstage/services/ledger/config"
	"example.com/backstage/services/ledger/eventstore"
	"example.com/backstage/services/ledger/messaging"
	"example.com/backstage/services/ledger/models"
	"example.com/backstage/services/ledger/projections"
	"example.com/backstage/services/ledger/readmodel"
	"example.com/backstage/services/ledger/search"
	"example.com/backstage/services/ledger/snapshots"
)

// components holds everything both commands wire up from configuration.
type components struct {
	db        *gorm.DB
	store     eventstore.EventStore
	snapshots snapshots.Store
	accounts  readmodel.AccountRepository
	cache     *cache.RedisCache
	search    *search.Client
	publisher *messaging.Publisher
	worker    *projections.Worker
}

func buildComponents(cfg config.Config) (*components, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBSource), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if cfg.EnableMigrations {
		err = db.AutoMigrate(
			&models.Event{},
			&models.AccountStream{},
			&models.AccountSnapshot{},
			&models.Account{},
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to migrate database")
		}
	}

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	searchClient, err := search.NewClient(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
		searchClient = nil
	}

	publisher, err := messaging.NewPublisher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, continuing without notifications")
		publisher = nil
	}

	store := eventstore.NewGormEventStore(db)
	snapshotStore := snapshots.NewGormStore(db)
	accounts := readmodel.NewGormAccountRepository(db)

	projector := projections.NewAccountProjector(accounts, redisCache, searchClient)
	retry := projections.RetryPolicy{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		Multiplier:      cfg.RetryMultiplier,
		MaxInterval:     cfg.RetryMaxInterval,
	}
	worker := projections.NewWorker(store, projector, publisher, retry, cfg.ProjectionBufferSize)

	return &components{
		db:        db,
		store:     store,
		snapshots: snapshotStore,
		accounts:  accounts,
		cache:     redisCache,
		search:    searchClient,
		publisher: publisher,
		worker:    worker,
	}, nil
}
