// Command velatura is the persona voice conversation server.
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
	"time"

	"github.com/museworks/velatura/internal/app"
	"github.com/museworks/velatura/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// The watcher keeps the capture tunables live; threshold and silence
	// limit are dialled in against a running server.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		slog.Info("configuration reloaded",
			"energy_threshold", new.Capture.EnergyThreshold,
			"silence_limit_ms", new.Capture.SilenceLimitMs)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "velatura: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "velatura: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	slog.SetDefault(app.NewLogger(cfg.Server.LogLevel))
	slog.Info("velatura starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"persona", cfg.Persona.Name,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg,
		app.WithCaptureConfig(func() config.CaptureConfig {
			return watcher.Current().Capture
		}),
	)
	if err != nil {
		slog.Error("startup failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.Shutdown(shutdownCtx)
	}()

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}
