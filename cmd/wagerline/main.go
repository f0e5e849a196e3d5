package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/internal/api"
	"github.com/fadedpez/wagerline/internal/config"
	"github.com/fadedpez/wagerline/internal/games"
	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/internal/metrics"
	"github.com/fadedpez/wagerline/pkg/bias"
	"github.com/fadedpez/wagerline/pkg/ledger"
	"github.com/fadedpez/wagerline/pkg/outcome"
	"github.com/fadedpez/wagerline/pkg/payout"
	"github.com/fadedpez/wagerline/pkg/repositories/audit"
	"github.com/fadedpez/wagerline/pkg/rounds"
	"github.com/fadedpez/wagerline/pkg/scheduler"
	"github.com/fadedpez/wagerline/pkg/services/betting"
	"github.com/fadedpez/wagerline/pkg/services/statistics"
	"github.com/fadedpez/wagerline/pkg/storage"
	"github.com/fadedpez/wagerline/pkg/storage/memory"
	"github.com/fadedpez/wagerline/pkg/storage/postgres"
	"github.com/fadedpez/wagerline/pkg/storage/redis"
	"github.com/fadedpez/wagerline/pkg/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Environment, logging.ParseLevel(cfg.LogLevel))
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("wagerline stopped", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sched := scheduler.NewScheduler(logger)

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger)}
	var recorder rounds.Recorder
	if cfg.ElasticsearchURL != "" {
		repo, err := audit.NewRepository(&audit.Config{
			URL:         cfg.ElasticsearchURL,
			Username:    cfg.ElasticsearchUsername,
			Password:    cfg.ElasticsearchPassword,
			IndexPrefix: cfg.ElasticsearchPrefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("audit index: %w", err)
		}
		defer repo.Close()

		ledgerOpts = append(ledgerOpts, ledger.WithAuditSink(repo))
		recorder = repo
		scheduler.NewAuditMaintenance(sched, repo, scheduler.DefaultPruneInterval, logger)
	}

	ledgerCfg := ledger.DefaultConfig()
	ledgerCfg.RolloverMultiplier = decimal.NewFromFloat(cfg.Ledger.RolloverMultiplier)
	ledgerCfg.MaxAttempts = cfg.Ledger.MaxAttempts
	ledgerCfg.InitialBackoff = cfg.Ledger.InitialBackoff
	ledgerCfg.MaxBackoff = cfg.Ledger.MaxBackoff
	engine := ledger.NewEngine(store, ledgerCfg, ledgerOpts...)

	generator := outcome.NewGenerator(outcome.Options{
		HouseConstant: cfg.Crash.HouseConstant,
		MaxCrash:      decimal.NewFromFloat(cfg.Crash.MaxMultiplier),
	})
	policy := bias.NewPolicy(bias.Config{
		Disabled:                  cfg.Bias.Disabled,
		LargeBetRatio:             cfg.Bias.LargeBetRatio,
		LargeBetProbability:       cfg.Bias.LargeBetProbability,
		BaseProbability:           cfg.Bias.BaseProbability,
		NearCompletionRatio:       cfg.Bias.NearCompletionRatio,
		NearCompletionProbability: cfg.Bias.NearCompletionProbability,
	}, nil)
	table := payout.NewTable(payout.Options{
		// Undefined combinations crash loudly in development only
		Strict:     cfg.IsDevelopment(),
		MaxCashout: decimal.NewFromFloat(cfg.Crash.MaxMultiplier),
		Logger:     logger,
	})

	registry := games.NewRegistry()
	for _, def := range games.Defaults(games.Timings{
		WinGo:       cfg.Rounds.WinGoBetting,
		DragonTiger: cfg.Rounds.DragonTigerBetting,
		Aviator:     cfg.Rounds.AviatorBetting,
		RevealDelay: cfg.Rounds.RevealDelay,
	}) {
		if err := registry.RegisterGame(def); err != nil {
			return err
		}
	}

	manager := rounds.NewManager(sched, cfg.Rounds.TickInterval, logger)
	for _, def := range registry.Shared() {
		round := rounds.NewRound(rounds.Config{
			Game:        def.Kind,
			Betting:     def.Betting,
			RevealDelay: def.RevealDelay,
			HistorySize: cfg.Rounds.HistorySize,
		}, rounds.Deps{
			Store:     store,
			Settler:   engine,
			Generator: generator,
			Policy:    policy,
			Table:     table,
			Logger:    logger,
			Recorder:  recorder,
		})
		if err := manager.Add(round); err != nil {
			return err
		}
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("restoring rounds: %w", err)
	}
	defer manager.Close()

	sched.Start(ctx)
	defer sched.Stop()

	server := api.NewServer(api.Deps{
		Ledger:     engine,
		Games:      registry,
		Rounds:     manager,
		Betting:    betting.NewService(engine, generator, policy, table, logger),
		Statistics: statistics.NewService(engine),
		Logger:     logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wagerline is now running", "addr", cfg.HTTPAddress, "storage", cfg.StorageType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openStore connects the configured backend
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (storage.Store, error) {
	switch cfg.StorageType {
	case config.StorageSQLite:
		return sqlite.New(cfg.SQLitePath(), logger)
	case config.StorageRedis:
		return redis.New(ctx, redis.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: "wagerline",
		}, logger)
	case config.StoragePostgres:
		return postgres.Open(cfg.PostgresDSN)
	default:
		return memory.New(), nil
	}
}
