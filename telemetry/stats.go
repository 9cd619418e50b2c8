// Package telemetry records per-timestep statistics, timings and metrics,
// and exports mortality snapshots and diagnostic images off the hot path.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TimestepStats is one row of timesteps.csv.
type TimestepStats struct {
	Timestep int `csv:"timestep"`

	// Site classification at the start of the step
	ActiveSites   int `csv:"active_sites"`
	HealthySites  int `csv:"healthy_sites"`
	InfectedSites int `csv:"infected_sites"`
	IgnoredSites  int `csv:"ignored_sites"`

	// Transitions
	Candidates       int `csv:"candidates"`
	ForcedCandidates int `csv:"forced_candidates"`
	Mortality        int `csv:"mortality"`
	Resprouts        int `csv:"resprouts"`
	LiveTimers       int `csv:"live_timers"`
	TotalBiomass     int `csv:"total_biomass"`

	InfectedFraction float64 `csv:"infected_fraction"`

	// Epidemic state means over active sites
	SusceptibleMean float64 `csv:"susceptible_mean"`
	InfectedMean    float64 `csv:"infected_mean"`
	DiseasedMean    float64 `csv:"diseased_mean"`

	// Diagnostic fields over active sites
	HostIndexMean float64 `csv:"shi_mean"`
	HostIndexMax  float64 `csv:"shi_max"`
	ModifiedMean  float64 `csv:"shim_mean"`
	ModifiedMax   float64 `csv:"shim_max"`
	FOIMean       float64 `csv:"foi_mean"`
	FOIMax        float64 `csv:"foi_max"`
	FOIP90        float64 `csv:"foi_p90"`
}

// FieldSummary summarizes the active-site values of one field.
type FieldSummary struct {
	Mean float64
	Max  float64
	P90  float64
}

// SummarizeField computes mean, max and 90th percentile of values. An empty
// slice yields the zero summary.
func SummarizeField(values []float64) FieldSummary {
	if len(values) == 0 {
		return FieldSummary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return FieldSummary{
		Mean: stat.Mean(values, nil),
		Max:  floats.Max(values),
		P90:  stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}
}

// Gather returns values[i] for each index in indices.
func Gather(values []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for k, i := range indices {
		out[k] = values[i]
	}
	return out
}

// LogValue implements slog.LogValuer for structured logging.
func (s TimestepStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("timestep", s.Timestep),
		slog.Int("healthy_sites", s.HealthySites),
		slog.Int("infected_sites", s.InfectedSites),
		slog.Int("candidates", s.Candidates),
		slog.Int("mortality", s.Mortality),
		slog.Int("resprouts", s.Resprouts),
		slog.Float64("infected_fraction", s.InfectedFraction),
		slog.Float64("foi_mean", s.FOIMean),
		slog.Float64("foi_max", s.FOIMax),
	)
}

// LogStats logs the per-timestep summary.
func (s TimestepStats) LogStats() {
	slog.Info("timestep",
		"timestep", s.Timestep,
		"infected_sites", s.InfectedSites,
		"candidates", s.Candidates,
		"mortality", s.Mortality,
		"resprouts", s.Resprouts,
		"infected_fraction", s.InfectedFraction,
		"foi_max", s.FOIMax,
	)
}
