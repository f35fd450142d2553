package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/ingest"
	"github.com/spec-kit/helpdesk-engine/internal/mailer"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/internal/storage"
	"github.com/spec-kit/helpdesk-engine/internal/worker"
)

// Standalone mailbox poller. Runs the same ingestion pipeline as the API
// binary without the HTTP surface, for deployments that separate the two.
func main() {
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	store := repository.NewStore(pg.PoolHandle())

	dispatcher := events.NewInMemoryDispatcher()
	if len(cfg.Kafka.Brokers) > 0 {
		sink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		sink.Attach(dispatcher)
		defer sink.Close() //nolint:errcheck
	}

	outbound, err := mailer.New(cfg.SMTP, store, logger)
	if err != nil {
		logger.Fatal("failed to init mailer", zap.Error(err))
	}

	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(dispatcher, store, outbound, logger)
	worker.StartNotificationWorker(notificationService)

	mapping, err := config.LoadAddressMapping(cfg.Ingest.AddressMappingFile)
	if err != nil {
		logger.Fatal("failed to load address mapping", zap.Error(err))
	}

	ingestService := ingest.NewService(ingest.Dependencies{
		Store:       store,
		Lifecycle:   lifecycleService,
		Notifier:    outbound,
		Attachments: storage.NewFSStore(cfg.Ingest.AttachmentDir),
		Dispatcher:  dispatcher,
		Logger:      logger,
		Config:      cfg.Ingest,
		Mapping:     *mapping,
	})

	lease := ingest.NewMailboxLease(redis.Client, cfg.Ingest.MailboxLockKey, 2*cfg.Ingest.PollInterval())
	poller := ingest.NewPoller(cfg.IMAP, cfg.Ingest, ingestService, lease, logger)

	if *once {
		processed, err := poller.PollOnce(ctx)
		if err != nil {
			logger.Fatal("poll cycle failed", zap.Error(err))
		}
		logger.Info("poll cycle complete", zap.Int("processed", processed))
		return
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	poller.Run(ctx)
}
