package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mallsoft/peyk/internal/api"
	"github.com/mallsoft/peyk/internal/campaign"
	"github.com/mallsoft/peyk/internal/config"
	"github.com/mallsoft/peyk/internal/customer"
	"github.com/mallsoft/peyk/internal/gateway"
	"github.com/mallsoft/peyk/internal/metrics"
	"github.com/mallsoft/peyk/internal/recipient"
	"github.com/mallsoft/peyk/internal/segment"
	"github.com/mallsoft/peyk/internal/template"
)

// App is the main application
type App struct {
	config        *config.Config
	storage       *campaign.BoltStorage
	dispatcher    *campaign.Dispatcher
	cron          *campaign.CronManager
	cleaner       *campaign.Cleaner
	apiServer     *api.Server
	metricsServer *metrics.Server
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Create storage; every store lives in the one bbolt file
	storage, err := campaign.NewBoltStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	directory, err := customer.NewStorage(storage.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to create customer storage: %w", err)
	}

	templates, err := template.NewStorage(storage.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to create template storage: %w", err)
	}

	segments, err := segment.NewStorage(storage.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to create segment storage: %w", err)
	}

	evaluator := segment.NewEvaluator(directory)
	resolver := recipient.NewResolver(evaluator)

	// Create SMS gateway
	gw, err := gateway.New(cfg.Gateway, logger.With("component", "gateway"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	logger.Info("SMS gateway configured", "provider", cfg.Gateway.Provider)

	// Setup metrics
	m := metrics.New()
	metrics.SetGlobal(m)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(m, cfg.Metrics, logger.With("component", "metrics"))
	}

	// Create campaign dispatcher
	dispatcher := campaign.NewDispatcher(
		storage,
		templates,
		segments,
		directory,
		resolver,
		gw,
		cfg.Dispatch,
		logger.With("component", "dispatcher"),
	)

	// Create cron manager for the scheduler and delivery reconciler
	scheduler := campaign.NewScheduler(storage, dispatcher, logger.With("component", "scheduler"))
	reconciler := campaign.NewReconciler(storage, gw, cfg.Reconcile.Lookback, logger.With("component", "reconciler"))

	cron := campaign.NewCronManager(scheduler, reconciler, logger.With("component", "cron"))
	if err := cron.SetupJobs(cfg.Scheduler, cfg.Reconcile); err != nil {
		return nil, fmt.Errorf("failed to setup cron jobs: %w", err)
	}

	// Create delivery report cleaner
	cleaner := campaign.NewCleaner(storage, cfg.Retention, logger.With("component", "cleaner"))

	// Create API server
	apiServer := api.NewServer(
		storage,
		dispatcher,
		templates,
		segments,
		evaluator,
		resolver,
		directory,
		&cfg.API,
		logger.With("component", "api"),
	)

	return &App{
		config:        cfg,
		storage:       storage,
		dispatcher:    dispatcher,
		cron:          cron,
		cleaner:       cleaner,
		apiServer:     apiServer,
		metricsServer: metricsServer,
		logger:        logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting peyk",
		"hostname", a.config.Server.Hostname,
		"api_addr", a.config.API.ListenAddr,
		"gateway", a.config.Gateway.Provider,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Pick up campaigns left in sending by an unclean shutdown
	if err := a.dispatcher.Requeue(ctx); err != nil {
		a.logger.Error("failed to requeue interrupted campaigns", "error", err)
	}

	// Start background jobs
	a.cron.Start()
	a.cleaner.Start(ctx)

	// Channel to collect errors
	errCh := make(chan error, 2)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Start metrics server if enabled
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop background jobs first (stop spawning new dispatches)
	a.cron.Stop()
	a.cleaner.Stop()

	// Wind down in-flight dispatch loops; interrupted campaigns stay in
	// sending and are requeued on the next boot
	a.dispatcher.Stop()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Close storage
	if err := a.storage.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
