package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/gocarina/gocsv"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/blight/cohort"
	"github.com/pthm-cable/blight/config"
	"github.com/pthm-cable/blight/landscape"
	"github.com/pthm-cable/blight/runner"
	"github.com/pthm-cable/blight/telemetry"
)

// failedFitness is returned for parameter vectors whose runs error out.
const failedFitness = 1e9

// Observation is one row of the observed infection series.
type Observation struct {
	Timestep         int     `csv:"timestep"`
	InfectedFraction float64 `csv:"infected_fraction"`
}

// ReadObservations parses an observed series and sorts it by timestep.
func ReadObservations(r io.Reader) ([]Observation, error) {
	var obs []Observation
	if err := gocsv.Unmarshal(r, &obs); err != nil {
		return nil, fmt.Errorf("parsing observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("observations: no rows")
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Timestep < obs[j].Timestep })
	for i, o := range obs {
		if o.Timestep < 1 {
			return nil, fmt.Errorf("observations: timestep %d is not positive", o.Timestep)
		}
		if i > 0 && obs[i-1].Timestep == o.Timestep {
			return nil, fmt.Errorf("observations: timestep %d appears twice", o.Timestep)
		}
		if o.InfectedFraction < 0 || o.InfectedFraction > 1 {
			return nil, fmt.Errorf("observations: fraction %g at timestep %d is outside [0,1]", o.InfectedFraction, o.Timestep)
		}
	}
	return obs, nil
}

// ReadObservationsFile is ReadObservations on a file path.
func ReadObservationsFile(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening observations: %w", err)
	}
	defer f.Close()
	return ReadObservations(f)
}

// SquaredError sums (simulated - observed)^2 over the observed timesteps.
// simulated is indexed by timestep-1.
func SquaredError(observed []Observation, simulated []float64) float64 {
	var sse float64
	for _, o := range observed {
		var s float64
		if o.Timestep <= len(simulated) {
			s = simulated[o.Timestep-1]
		}
		d := s - o.InfectedFraction
		sse += d * d
	}
	return sse
}

// FitnessEvaluator runs headless simulations and scores them against the
// observed series.
type FitnessEvaluator struct {
	params   *ParamVector
	seeds    []int64
	base     *config.Config
	grid     *landscape.Grid
	mask     []bool
	store    *cohort.MemoryStore
	observed []Observation

	mu         sync.Mutex
	lastSpread float64 // seed standard deviation from the most recent Evaluate
}

// NewFitnessEvaluator creates an evaluator. The store is cloned for every
// run and never advanced itself.
func NewFitnessEvaluator(params *ParamVector, seeds []int64, base *config.Config, grid *landscape.Grid, mask []bool, store *cohort.MemoryStore, observed []Observation) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:   params,
		seeds:    seeds,
		base:     base,
		grid:     grid,
		mask:     mask,
		store:    store,
		observed: observed,
	}
}

// LastSpread returns the standard deviation of per-seed errors from the most
// recent evaluation.
func (fe *FitnessEvaluator) LastSpread() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastSpread
}

// Evaluate returns the mean squared error over all seeds for raw parameter
// values x (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	errs := make([]float64, len(fe.seeds))
	g, ctx := errgroup.WithContext(context.Background())
	for i, seed := range fe.seeds {
		g.Go(func() error {
			series, err := fe.runSimulation(ctx, cfg, seed)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			errs[i] = SquaredError(fe.observed, series)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("evaluation failed", "params", x, "error", err)
		return failedFitness
	}

	var mean, sq float64
	for _, e := range errs {
		mean += e
	}
	mean /= float64(len(errs))
	for _, e := range errs {
		sq += (e - mean) * (e - mean)
	}

	fe.mu.Lock()
	fe.lastSpread = math.Sqrt(sq / float64(len(errs)))
	fe.mu.Unlock()
	return mean
}

// runSimulation runs one seed up to the last observed timestep and returns
// the infected fraction of every timestep.
func (fe *FitnessEvaluator) runSimulation(ctx context.Context, cfg *config.Config, seed int64) ([]float64, error) {
	horizon := fe.observed[len(fe.observed)-1].Timestep
	series := make([]float64, 0, horizon)

	r, err := runner.New(ctx, cfg, runner.Options{
		Seed:          seed,
		Logger:        slog.New(slog.DiscardHandler),
		Grid:          fe.grid,
		InfectionMask: fe.mask,
		Store:         fe.store.Clone(),
		StatsCallback: func(s telemetry.TimestepStats) {
			series = append(series, s.InfectedFraction)
		},
	})
	if err != nil {
		return nil, err
	}
	defer r.Close(context.Background())

	for r.Timestep() < horizon {
		if _, err := r.Step(ctx); err != nil {
			return nil, err
		}
	}
	return series, nil
}

// copyConfig returns a shallow copy of the base config with every output
// disabled. Evaluations only replace scalar fields, so shared slices stay
// read-only.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.base
	cfg.Telemetry.OutputDir = ""
	cfg.Telemetry.Driver = ""
	cfg.Telemetry.MetricsAddr = ""
	return &cfg
}
