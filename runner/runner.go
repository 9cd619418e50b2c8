// Package runner wires a Simulation to its inputs and outputs for headless
// runs: landscape and cohort files, CSV logs, snapshot export and metrics.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pthm-cable/blight/blob"
	"github.com/pthm-cable/blight/blob/fs"
	"github.com/pthm-cable/blight/blob/memory"
	"github.com/pthm-cable/blight/blob/s3"
	"github.com/pthm-cable/blight/cohort"
	"github.com/pthm-cable/blight/config"
	"github.com/pthm-cable/blight/landscape"
	"github.com/pthm-cable/blight/sim"
	"github.com/pthm-cable/blight/simerr"
	"github.com/pthm-cable/blight/telemetry"
)

// Options configures a Runner.
type Options struct {
	// Seed overrides the configured seed when non-zero.
	Seed int64
	// OutputDir overrides telemetry.output_dir when set.
	OutputDir string
	// LogStats logs every timestep's stats through the logger.
	LogStats bool
	Logger   *slog.Logger
	// StatsCallback is called after each timestep, if set.
	StatsCallback func(telemetry.TimestepStats)

	// Store replaces the cohort file when set.
	Store *cohort.MemoryStore
	// Grid and InfectionMask replace the landscape files when set.
	Grid          *landscape.Grid
	InfectionMask []bool
}

// Runner owns one simulation and everything it writes.
type Runner struct {
	cfg    *config.Config
	grid   *landscape.Grid
	sim    *sim.Simulation
	store  *cohort.MemoryStore
	logger *slog.Logger

	perf          *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	blobs         blob.Store
	exports       *telemetry.ExportQueue
	metrics       *telemetry.Metrics
	metricsServer *http.Server

	logStats      bool
	statsCallback func(telemetry.TimestepStats)
	timestep      int
}

// New loads the landscape and cohorts, builds the simulation and opens the
// configured outputs.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	grid, mask := opts.Grid, opts.InfectionMask
	if grid == nil {
		var err error
		if grid, mask, err = LoadLandscape(cfg); err != nil {
			return nil, err
		}
	}

	store := opts.Store
	if store == nil {
		var err error
		if store, err = LoadCohorts(cfg, grid); err != nil {
			return nil, err
		}
	}
	store.NewCohortBiomass = cfg.Biomass.NewCohortBiomass

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	s, err := sim.Initialize(cfg, grid, mask, sim.Options{Logger: logger, Perf: perf, Seed: opts.Seed})
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:           cfg,
		grid:          grid,
		sim:           s,
		store:         store,
		logger:        logger,
		perf:          perf,
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}

	outputDir := cfg.Telemetry.OutputDir
	if opts.OutputDir != "" {
		outputDir = opts.OutputDir
	}
	if err := r.openOutputs(ctx, outputDir); err != nil {
		r.Close(ctx)
		return nil, err
	}
	return r, nil
}

// LoadLandscape builds the grid from the configured dimensions and active
// mask, then reads the initial infection mask. Either path may be empty.
func LoadLandscape(cfg *config.Config) (*landscape.Grid, []bool, error) {
	l := cfg.Landscape
	grid, err := landscape.NewGrid(l.Width, l.Height, l.CellLength, nil)
	if err != nil {
		return nil, nil, err
	}
	if l.ActiveMask != "" {
		active, err := landscape.ReadMaskFile(cfg.Path(l.ActiveMask), grid)
		if err != nil {
			return nil, nil, err
		}
		if grid, err = landscape.NewGrid(l.Width, l.Height, l.CellLength, active); err != nil {
			return nil, nil, err
		}
	}
	var mask []bool
	if l.InfectionMask != "" {
		if mask, err = landscape.ReadMaskFile(cfg.Path(l.InfectionMask), grid); err != nil {
			return nil, nil, err
		}
	}
	return grid, mask, nil
}

// LoadCohorts reads the configured cohorts table onto grid's active sites.
func LoadCohorts(cfg *config.Config, grid *landscape.Grid) (*cohort.MemoryStore, error) {
	path := cfg.Landscape.Cohorts
	if path == "" {
		return nil, simerr.Configf("landscape.cohorts is required")
	}
	store, err := cohort.LoadCSVFile(cfg.Path(path), func(x, y int) (int, bool) {
		if !grid.ActiveAt(x, y) {
			return 0, false
		}
		return grid.Index(x, y), true
	})
	if err != nil {
		if errors.Is(err, simerr.ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", simerr.ErrConfiguration, err)
	}
	store.NewCohortBiomass = cfg.Biomass.NewCohortBiomass
	return store, nil
}

func (r *Runner) openOutputs(ctx context.Context, outputDir string) error {
	om, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	r.outputManager = om
	if err := om.WriteConfig(r.cfg); err != nil {
		return fmt.Errorf("writing config snapshot: %w", err)
	}
	if err := r.writeTransitions(om.Dir()); err != nil {
		return err
	}

	t := r.cfg.Telemetry
	switch blob.Driver(t.Driver) {
	case blob.DriverFilesystem:
		// Snapshots go next to the CSV logs; no output dir means no export.
		if outputDir != "" {
			r.blobs, err = fs.New(filepath.Join(outputDir, "blobs"))
		}
	case blob.DriverMemory:
		r.blobs = memory.New()
	case blob.DriverS3:
		r.blobs, err = s3.New(ctx, t.S3)
	}
	if err != nil {
		return err
	}
	if r.blobs != nil {
		r.exports = telemetry.NewExportQueue(r.blobs, t.Prefix, t.QueueCapacity, r.logger)
	}

	if t.MetricsAddr != "" {
		r.metrics = telemetry.NewMetrics()
		srv, err := r.metrics.Serve(t.MetricsAddr, r.logger)
		if err != nil {
			return err
		}
		r.metricsServer = srv
		r.logger.Info("serving metrics", "addr", srv.Addr)
	}
	return nil
}

// writeTransitions dumps the resolved transition matrices beside the CSV
// logs.
func (r *Runner) writeTransitions(dir string) error {
	if dir == "" {
		return nil
	}
	f, err := os.Create(filepath.Join(dir, "transitions.csv"))
	if err != nil {
		return fmt.Errorf("creating transitions.csv: %w", err)
	}
	defer f.Close()
	if err := r.sim.Registry().Dump(f); err != nil {
		return fmt.Errorf("writing transitions.csv: %w", err)
	}
	return nil
}

// Simulation returns the underlying simulation.
func (r *Runner) Simulation() *sim.Simulation { return r.sim }

// Store returns the cohort store the runner advances.
func (r *Runner) Store() *cohort.MemoryStore { return r.store }

// Blobs returns the snapshot store, or nil when export is disabled.
func (r *Runner) Blobs() blob.Store { return r.blobs }

// Timestep returns the number of completed timesteps.
func (r *Runner) Timestep() int { return r.timestep }

// Step advances one timestep, ages the cohorts and flushes telemetry.
func (r *Runner) Step(ctx context.Context) (sim.Result, error) {
	ts := r.timestep + 1
	res, err := r.sim.AdvanceStore(ts, r.store)
	if err != nil {
		return sim.Result{}, fmt.Errorf("timestep %d: %w", ts, err)
	}
	r.store.Grow(r.cfg.Simulation.GrowYears)
	r.timestep = ts

	if err := r.flushTelemetry(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// Run steps until the configured number of timesteps is reached or ctx is
// done.
func (r *Runner) Run(ctx context.Context) error {
	for r.timestep < r.cfg.Simulation.Timesteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.Step(ctx); err != nil {
			return err
		}
	}
	r.logger.Info("run complete", "timesteps", r.timestep, "perf", r.perf.Stats())
	return nil
}

// flushTelemetry writes one timestep's stats, perf and snapshots.
func (r *Runner) flushTelemetry(ctx context.Context, res sim.Result) error {
	stats := res.Stats
	perfStats := r.perf.Stats()

	if r.statsCallback != nil {
		r.statsCallback(stats)
	}
	if r.logStats {
		stats.LogStats()
	}
	r.metrics.Observe(stats, r.perf.Last())

	if err := r.outputManager.WriteTimestep(stats); err != nil {
		r.logger.Error("failed to write timestep stats", "error", err)
	}
	if window := r.cfg.Telemetry.PerfWindow; window > 0 && res.Timestep%window == 0 {
		if err := r.outputManager.WritePerf(perfStats, res.Timestep); err != nil {
			r.logger.Error("failed to write perf", "error", err)
		}
	}

	if r.exports == nil {
		return nil
	}
	snap, err := res.MortalitySnapshot(r.grid)
	if err != nil {
		return err
	}
	if err := r.exports.EnqueueMortality(ctx, snap); err != nil {
		return fmt.Errorf("exporting mortality: %w", err)
	}
	for _, name := range r.cfg.Telemetry.ExportFields {
		var values []float64
		switch name {
		case "shi":
			values = res.Fields.HostIndex
		case "shim":
			values = res.Fields.ModifiedHostIndex
		case "foi":
			values = res.Fields.ForceOfInfection
		}
		if err := r.exports.EnqueueField(ctx, name, res.Timestep, r.grid.Width, r.grid.Height, values); err != nil {
			return fmt.Errorf("exporting %s: %w", name, err)
		}
	}
	return nil
}

// Close drains pending exports, stops the metrics listener and closes the
// CSV files. ctx bounds the drain.
func (r *Runner) Close(ctx context.Context) error {
	var errs []error
	if r.exports != nil {
		if err := r.exports.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining exports: %w", err))
		}
		r.logger.Info("exports written", "count", r.exports.Written())
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.outputManager.Close(); err != nil {
		errs = append(errs, err)
	}
	r.sim.Close()
	return errors.Join(errs...)
}
