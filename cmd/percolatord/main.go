// percolatord is the process entrypoint for a Percolator node: it loads
// config, wires every configured slab plus the Router into one
// internal/engine.Engine, starts the dashboard/metrics API if enabled, and
// runs until SIGINT/SIGTERM.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts engine, waits for shutdown signal
//	internal/engine      — orchestrator: builds slabs + Router, runs batch-open scheduling
//	internal/slab        — one isolated perp market: book, reservations, commits, positions
//	internal/router      — global vault, escrow, capabilities, portfolio margin, cross-slab routing
//	internal/oracle      — mark-price source (demo REST adapter) for kill-band checks
//	internal/api         — dashboard/observability HTTP+WebSocket server, Prometheus metrics
//	internal/config      — viper-based YAML config with PERC_*-prefixed env overrides
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"percolator/internal/config"
	"percolator/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PERC_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN flag set — it is only reported in the dashboard config summary; minting and settlement run normally")
	}

	dashboardURL := "disabled"
	if cfg.Dashboard.Enabled {
		dashboardURL = fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port)
	}
	logger.Info("percolatord started",
		"slabs", len(cfg.Slabs),
		"mints", cfg.Router.Mints,
		"dashboard", dashboardURL,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
