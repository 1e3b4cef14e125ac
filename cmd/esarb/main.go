// Command esarb is the esports latency-arbitrage trader. It loads and
// validates configuration, wires dependencies, and runs the configured
// mode until a signal or POST /api/stop asks it to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/esportsarb/internal/app"
	"github.com/alanyoungcy/esportsarb/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override configured mode (trade, status, archive)")
	paperFlag := flag.Bool("paper", false, "force paper trading")
	liveFlag := flag.Bool("live", false, "force live trading")
	debug := flag.Bool("debug", false, "force debug log level")
	flag.Parse()

	// Bootstrap logger; replaced once the config says how to log.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *paperFlag && *liveFlag {
		logger.Error("-paper and -live are mutually exclusive")
		os.Exit(1)
	}
	if *paperFlag {
		cfg.Engine.PaperTrading = true
	}
	if *liveFlag {
		cfg.Engine.PaperTrading = false
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("esarb starting",
		slog.String("mode", cfg.Mode),
		slog.Bool("paper_trading", cfg.Engine.PaperTrading),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if err == context.Canceled {
			logger.Info("shut down gracefully")
		} else {
			logger.Error("exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("esarb stopped")
}
