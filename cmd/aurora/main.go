// Aurora — the decision-and-execution core of a high-frequency trading bot.
//
// Architecture:
//
//	main.go                  — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go         — orchestrator: snapshot → features → score → governance → router
//	features/                — streaming estimators: OBI, TFI/VPIN, absorption, queue dynamics
//	signal/                  — linear score + calibration, Hayashi–Yoshida lead–lag
//	governance/              — composite SPRT with alpha-spending ledger, static risk gates
//	idem/                    — idempotency store (memory/sqlite) and submission guard
//	exchange/                — filter validation, shadow simulator, live REST client, router
//	tca/                     — expected-return gate with latency degradation
//	ingest/                  — WebSocket market-data feed → snapshots
//
// How it trades:
//
//	Each book snapshot is folded into per-symbol streaming features, mapped
//	to a calibrated probability of profitable execution, and cleared through
//	two layers of governance — the TCA expected-return gate and the static
//	risk gates — before an order is routed. Every submission passes the
//	idempotency guard, so crashes, retries, and duplicate exchange callbacks
//	have at most one economic effect.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aurora-core/internal/config"
	"aurora-core/internal/engine"
	"aurora-core/internal/ingest"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("AURORA_CONFIG"); p != "" {
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

	// Set up logger
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

	if wsURL := os.Getenv("AURORA_WS_URL"); wsURL != "" {
		eng.SetSource(ingest.NewFeed(wsURL, cfg.Symbols, logger))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.Exchange.Mode == "shadow" || cfg.DryRun {
		logger.Warn("SHADOW MODE — fills are simulated, no real orders will be placed")
	}

	logger.Info("aurora core started",
		"symbols", cfg.Symbols,
		"exchange_mode", cfg.Exchange.Mode,
		"idem_backend", cfg.Idempotency.Backend,
		"alpha_policy", cfg.SPRT.AlphaPolicy,
	)

	// Wait for shutdown signal
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
