package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hive-services/backend/internal/config"
	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/escalation"
	httpapi "github.com/hive-services/backend/internal/http"
	"github.com/hive-services/backend/internal/http/handlers"
	"github.com/hive-services/backend/internal/notify"
	"github.com/hive-services/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "hive-backend").Str("env", cfg.Env).Logger()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	repo := openRepository(ctx, cfg, logger)
	defer repo.Close()

	var sink notify.Sink = notify.LogSink{Logger: logger.With().Str("component", "notify").Logger()}
	if cfg.NotifyWebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.NotifyWebhookURL, cfg.NotifyTimeout)
		logger.Info().Msg("notifications delivered to webhook")
	}
	dispatcher := notify.NewDispatcher(sink, notify.DispatcherConfig{
		QueueSize:   cfg.NotifyQueueSize,
		Timeout:     cfg.NotifyTimeout,
		MaxAttempts: cfg.NotifyMaxAttempts,
	}, logger.With().Str("component", "notify").Logger())
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	policy, err := service.NewPolicy()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load transition policy")
	}
	loc := cfg.Location()
	validate := service.NewValidator()
	resolver := &service.AssignmentResolver{Repo: repo, Validator: validate}
	engine := &service.Engine{
		Repo:      repo,
		Policy:    policy,
		Resolver:  resolver,
		Validator: validate,
		Notifier:  dispatcher,
		Logger:    logger.With().Str("component", "engine").Logger(),
		Location:  loc,
	}
	requests := &service.RequestService{
		Repo:      repo,
		Policy:    policy,
		Resolver:  resolver,
		Validator: validate,
		Notifier:  dispatcher,
		Logger:    logger,
		Location:  loc,
	}

	sweeper := escalation.NewSweeper(escalation.SweepConfig{
		Enabled: cfg.EscalationSweepEnabled,
		Spec:    cfg.EscalationSweepSpec,
	}, repo, engine, dispatcher, logger.With().Str("component", "sweep").Logger(), nil)
	if err := sweeper.StartWithContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start escalation sweep")
	}

	h := &handlers.Handler{
		Repo:     repo,
		Requests: requests,
		Engine:   engine,
		Resolver: resolver,
		Invoices: &service.InvoiceLedger{Requests: requests, Notifier: dispatcher, Logger: logger},
		Photos:   &service.PhotoTracker{Requests: requests, Logger: logger},
		Sweeper:  sweeper,
		Logger:   logger,
	}
	router := httpapi.Router(cfg, h, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	if err := sweeper.StopWithContext(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("escalation sweep did not stop in time")
	}
	logger.Info().Msg("server stopped")
}

func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) db.Repository {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return db.NewMemoryStore()
	}
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		logger.Info().Msg("migrations applied")
	}
	return store
}
