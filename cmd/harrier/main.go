// Harrier - Underwriting decisions in milliseconds.
// Copyright (c) 2025 opensource.insurance
// Licensed under the Apache License 2.0

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

	"github.com/opensource-insurance/harrier/internal/api"
	"github.com/opensource-insurance/harrier/internal/bus"
	"github.com/opensource-insurance/harrier/internal/cache"
	"github.com/opensource-insurance/harrier/internal/domain"
	"github.com/opensource-insurance/harrier/internal/lifecycle"
	"github.com/opensource-insurance/harrier/internal/predicate"
	"github.com/opensource-insurance/harrier/internal/premium"
	"github.com/opensource-insurance/harrier/internal/repository"
	"github.com/opensource-insurance/harrier/internal/resolver"
	"github.com/opensource-insurance/harrier/internal/worker"
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
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize predicate compiler and resolver engine
	compiler, err := predicate.NewCompiler()
	if err != nil {
		slog.Error("failed to initialize predicate compiler", "error", err)
		os.Exit(1)
	}
	engine := resolver.NewEngine(compiler)

	// Initialize premium store
	rates := premium.NewStore()

	// Initialize lifecycle manager
	manager := lifecycle.NewManager(repo, busImpl, logger)

	// Initialize reload worker: it loads configuration at startup, follows
	// bus events afterwards, and resyncs periodically as a safety net.
	reloadWorker := worker.NewWorker(busImpl, repo, engine, rates, cacheImpl)

	if err := reloadWorker.ReloadRuleSets(ctx); err != nil {
		slog.Error("failed to load rule sets", "error", err)
		os.Exit(1)
	}
	if err := reloadWorker.ReloadRates(ctx); err != nil {
		slog.Error("failed to load premium rates", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded into engine",
		"rule_sets", engine.RuleSetsCount(),
		"rate_grids", rates.GridCount(),
	)

	if err := reloadWorker.Start(worker.Config{ResyncInterval: 5 * time.Minute}); err != nil {
		slog.Error("failed to start reload worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, rates, manager, compiler, reloadWorker, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop reload worker first
	if err := reloadWorker.Stop(); err != nil {
		slog.Error("failed to stop reload worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               HARRIER                     ║")
	fmt.Println("  ║     Underwriting Decision Engine          ║")
	fmt.Println("  ║      Every answer, weighed.               ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /underwrite             - Underwrite an applicant")
	fmt.Println("    GET  /decisions/{id}         - Get decision by ID")
	fmt.Println("    GET  /conditions             - List health conditions")
	fmt.Println("    GET  /products               - List products")
	fmt.Println("    GET  /rulesets               - List rule sets")
	fmt.Println("    POST /rulesets/{id}/submit   - Submit for review")
	fmt.Println("    POST /rulesets/{id}/approve  - Approve a rule set")
	fmt.Println("    GET  /coverage               - Coverage report")
	fmt.Println("    PUT  /products/{id}/rates    - Replace premium rates")
	fmt.Println("    POST /generate/knockouts     - Generate knockout rules")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
