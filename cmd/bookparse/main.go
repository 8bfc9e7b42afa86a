// Command bookparse rebuilds daily canonical order-book tables from the
// exchange's archived continuous-trading messages. It loads configuration,
// validates it, wires dependencies, sets up signal handling, and runs the
// configured mode over the configured date range.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/intradaybook/internal/app"
	"github.com/alanyoungcy/intradaybook/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	from := flag.String("from", "", "first day to process (YYYY-MM-DD), overrides parse.start_date")
	to := flag.String("to", "", "last day to process (YYYY-MM-DD), overrides parse.end_date")
	mode := flag.String("mode", "", "run mode (parse, dry_run, verify, status), overrides mode")
	flag.Parse()

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
	if *from != "" {
		cfg.Parse.StartDate = *from
	}
	if *to != "" {
		cfg.Parse.EndDate = *to
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("bookparse starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.String("start_date", cfg.Parse.StartDate),
		slog.String("end_date", cfg.Parse.EndDate),
	)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	application.Close()
	stop()

	if err != nil {
		// context.Canceled is expected on interrupt.
		if errors.Is(err, context.Canceled) {
			logger.Info("bookparse interrupted")
			return
		}
		logger.Error("bookparse exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger.Info("bookparse finished")
}
