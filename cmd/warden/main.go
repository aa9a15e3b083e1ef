// Warden - Risk-based compliance enforcement for rental marketplaces.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peershare/warden/internal/api"
	"github.com/peershare/warden/internal/bus"
	"github.com/peershare/warden/internal/cache"
	"github.com/peershare/warden/internal/compliance"
	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/enforcement"
	"github.com/peershare/warden/internal/facts"
	"github.com/peershare/warden/internal/history"
	"github.com/peershare/warden/internal/manager"
	"github.com/peershare/warden/internal/regulation"
	"github.com/peershare/warden/internal/repository"
	"github.com/peershare/warden/internal/risk"
	"github.com/peershare/warden/internal/rules"
	"github.com/peershare/warden/internal/violation"
	"github.com/peershare/warden/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("WARDEN_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting warden",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Distributed mode swaps SQLite/memory/channel for Postgres/Redis/NATS
	if os.Getenv("WARDEN_MODE") == "distributed" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"facts", cfg.Facts.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Facts Provider
	factsImpl, err := facts.NewProvider(cfg.Facts)
	if err != nil {
		slog.Error("failed to initialize facts provider", "error", err)
		os.Exit(1)
	}
	slog.Info("facts provider initialized", "type", cfg.Facts.Type)

	// Initialize Signal Rule Engine
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize signal rule engine", "error", err)
		os.Exit(1)
	}

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadSignalRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load signal rules", "error", err)
		os.Exit(1)
	}
	slog.Info("signal rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize scoring and compliance components
	hist := history.NewService(repo, cacheImpl)
	scorer, err := risk.NewScorer(cfg.Scoring, factsImpl, repo, cacheImpl, hist, engine)
	if err != nil {
		slog.Error("failed to initialize risk scorer", "error", err)
		os.Exit(1)
	}

	evaluator := regulation.NewEvaluator(repo, cacheImpl)
	tracker := compliance.NewTracker(repo, factsImpl, evaluator, busImpl)
	decider := enforcement.NewDecider(repo, busImpl, enforcement.NewBusExecutors(busImpl), cfg.Enforcement)
	ledger := violation.NewLedger(repo, busImpl)

	mgr := manager.New(repo, cacheImpl, busImpl, scorer, evaluator, tracker, decider, ledger, engine)
	slog.Info("enforcement manager initialized")

	// Initialize async recheck Worker
	var recheckWorker *worker.Worker
	if os.Getenv("WARDEN_RECHECK_WORKER") != "false" {
		recheckWorker = worker.NewWorker(busImpl, mgr, worker.Config{WorkerCount: 10})
		if err := recheckWorker.Start(); err != nil {
			slog.Error("failed to start recheck worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, mgr, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("warden is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop recheck worker first
	if recheckWorker != nil {
		if err := recheckWorker.Stop(); err != nil {
			slog.Error("failed to stop recheck worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("warden shutdown complete")
}

// applyEnvOverrides lets deployments tweak endpoints without a config file.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("WARDEN_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("WARDEN_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("WARDEN_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("WARDEN_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("WARDEN_FACTS_URL"); v != "" {
		cfg.Facts.Type = "http"
		cfg.Facts.BaseURL = v
	}
}

// loadSignalRules loads rules from the database into the engine.
// All rules must be configured via POST /signal-rules - no hardcoded defaults.
func loadSignalRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListSignalRules(ctx)
	if err != nil {
		slog.Warn("failed to list signal rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading signal rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no signal rules in database - configure via POST /signal-rules")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  WARDEN - Compliance Enforcement Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /risk-profiles                  - Create a risk profile")
	fmt.Println("    POST /assessments                    - Assess booking risk")
	fmt.Println("    POST /compliance/check               - Run a compliance check")
	fmt.Println("    POST /compliance/{bookingId}/enforce - Trigger enforcement")
	fmt.Println("    PUT  /regulations                    - Upsert a regulation")
	fmt.Println("    POST /violations                     - Record a violation")
	fmt.Println("    GET  /signal-rules                   - List signal rules")
	fmt.Println("    GET  /stats                          - Engine statistics")
	fmt.Println("    GET  /health                         - Health check")
	fmt.Println()
}
