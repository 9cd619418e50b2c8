package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pthm-cable/blight/config"
	"github.com/pthm-cable/blight/runner"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = use config, then time-based)")
	timesteps := flag.Int("timesteps", 0, "Number of timesteps (0 = use config)")
	cohortsPath := flag.String("cohorts", "", "Initial cohorts CSV (overrides landscape.cohorts)")
	maskPath := flag.String("mask", "", "Initial infection mask PNG (overrides landscape.infection_mask)")
	width := flag.Int("width", 0, "Grid width in cells (0 = use config)")
	height := flag.Int("height", 0, "Grid height in cells (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config snapshot and blobs")
	logStats := flag.Bool("log-stats", false, "Log per-timestep stats via slog")
	drainTimeout := flag.Duration("drain-timeout", 30*time.Second, "Time allowed for pending exports at shutdown")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *timesteps > 0 {
		cfg.Simulation.Timesteps = *timesteps
	}
	if *width > 0 {
		cfg.Landscape.Width = *width
	}
	if *height > 0 {
		cfg.Landscape.Height = *height
	}
	// Flag paths are relative to the working directory, not the config file.
	if *cohortsPath != "" {
		cfg.Landscape.Cohorts = absPath(*cohortsPath)
	}
	if *maskPath != "" {
		cfg.Landscape.InfectionMask = absPath(*maskPath)
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(ctx, cfg, runner.Options{
		Seed:      *seed,
		OutputDir: *outputDir,
		LogStats:  *logStats,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		os.Exit(1)
	}

	slog.Info("starting simulation",
		"seed", r.Simulation().Seed(),
		"timesteps", cfg.Simulation.Timesteps,
		"output_dir", *outputDir,
	)
	runErr := r.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), *drainTimeout)
	defer cancel()
	if err := r.Close(drainCtx); err != nil {
		slog.Error("shutdown", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		slog.Error("simulation failed", "timestep", r.Timestep(), "error", runErr)
		os.Exit(1)
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
