package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldline/automation-engine/internal/api/rest"
	"github.com/fieldline/automation-engine/internal/api/rest/handlers"
	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/messaging"
	"github.com/fieldline/automation-engine/internal/repository/postgres"
	"github.com/fieldline/automation-engine/internal/senders"
	"github.com/fieldline/automation-engine/internal/workers"
	"github.com/fieldline/automation-engine/pkg/config"
	"github.com/fieldline/automation-engine/pkg/database"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	logger.SetDefault(log)
	log.Info("Starting automation engine API",
		logger.String("version", cfg.App.Version),
		logger.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL
	db, err := database.NewPostgresDB(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize Redis
	redis, err := database.NewRedisClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer redis.Close()

	// Initialize metrics
	m := metrics.New()

	// Initialize repositories
	workflowRepo := postgres.NewWorkflowRepository(db.DB)
	executionRepo := postgres.NewExecutionRepository(db.DB)
	messageRepo := postgres.NewMessageRepository(db.DB)
	conversationRepo := postgres.NewConversationRepository(db.DB)
	optOutRepo := postgres.NewOptOutRepository(db.DB)

	// Initialize message senders. Without provider endpoints configured,
	// messages are logged instead of sent.
	var smsSender engine.SMSSender
	var emailSender engine.EmailSender
	if cfg.Provider.SMSEndpoint != "" {
		smsSender = senders.NewHTTPSMSSender(&cfg.Provider, m, log)
	} else {
		log.Warn("No SMS provider configured, logging messages instead")
		smsSender = senders.NewLogSMSSender(log)
	}
	if cfg.Provider.EmailEndpoint != "" {
		emailSender = senders.NewHTTPEmailSender(&cfg.Provider, m, log)
	} else {
		log.Warn("No email provider configured, logging messages instead")
		emailSender = senders.NewLogEmailSender(log)
	}

	// Initialize engine components
	detector := engine.NewTriggerDetector(workflowRepo, executionRepo, m, log)
	runner := engine.NewStepRunner(smsSender, emailSender, m, log)
	dispatcher := engine.NewDispatcher(workflowRepo, executionRepo, runner, m, log)

	retryPolicy := engine.RetryPolicy{
		MaxRetries: cfg.Engine.MaxRetries,
		CoolDown:    cfg.Engine.CoolDown,
		BaseDelay:   cfg.Engine.RetryBaseDelay,
		Multiplier:  cfg.Engine.BackoffMultiplier,
	}
	sweeper := engine.NewRetrySweeper(executionRepo, retryPolicy, m, log)

	// Initialize webhook deduplicator
	deduplicator := messaging.NewDeduplicator(
		messageRepo, conversationRepo, optOutRepo, redis, m, log,
	)

	// Start background workers
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	dispatchWorker := workers.NewDispatchWorker(dispatcher, m, log, cfg.Engine.DispatchSweepEvery, cfg.Engine.DispatchBatchSize)
	dispatchWorker.Start(workerCtx)
	defer dispatchWorker.Stop()

	retryWorker := workers.NewRetryWorker(sweeper, m, log, cfg.Engine.RetrySweepEvery, cfg.Engine.DispatchBatchSize)
	retryWorker.Start(workerCtx)
	defer retryWorker.Stop()

	// Initialize handlers
	h := handlers.NewHandlers(
		log,
		workflowRepo,
		executionRepo,
		conversationRepo,
		detector,
		dispatcher,
		sweeper,
		deduplicator,
		&handlers.HealthCheckers{
			DB:    db,
			Redis: redis,
		},
		cfg.App.Version,
	)

	// Initialize router
	router := rest.NewRouter(log, h, m)
	router.SetupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("API server listening", logger.String("address", addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", logger.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}
