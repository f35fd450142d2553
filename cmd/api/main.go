package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-engine/internal/api/http"
	"github.com/spec-kit/helpdesk-engine/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-engine/internal/auth"
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

func main() {
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
	metrics := observability.NewMetrics()

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
	accessService := service.NewAccessService(store)
	operatorService := service.NewOperatorService(store, cfg.Auth.BcryptCost)
	auditService := service.NewAuditService(store)

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

	if cfg.IMAP.Host != "" {
		lease := ingest.NewMailboxLease(redis.Client, cfg.Ingest.MailboxLockKey, 2*cfg.Ingest.PollInterval())
		poller := ingest.NewPoller(cfg.IMAP, cfg.Ingest, ingestService, lease, logger)
		go poller.Run(ctx)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewAuthMiddleware(tokens, store.Operators)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(lifecycleService, accessService),
		Operators:      handlers.NewOperatorsHandler(operatorService),
		Inbound:        handlers.NewInboundHandler(ingestService, cfg.Ingest.WebhookKey),
		Audit:          handlers.NewAuditHandler(auditService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
