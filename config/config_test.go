package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/blight/dispersal"
	"github.com/pthm-cable/blight/simerr"
	"github.com/pthm-cable/blight/transition"
)

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Dispersal.Kernel != dispersal.TwoPointPowerLaw {
		t.Errorf("kernel = %q", cfg.Dispersal.Kernel)
	}
	if cfg.Simulation.Workers <= 0 {
		t.Error("workers not derived")
	}
	if len(cfg.Derived.Groups) != 1 || cfg.Derived.Groups[0].Policies.Gap != transition.GapAgeThreshold {
		t.Errorf("derived groups = %+v", cfg.Derived.Groups)
	}
	if cfg.Biomass.ResproutLongevity != 5 || cfg.Biomass.ResproutProbability != 0.15 {
		t.Errorf("biomass defaults = %+v", cfg.Biomass)
	}
}

func TestOverlayAndOverrides(t *testing.T) {
	data := []byte(`
simulation:
  timesteps: 3
dispersal:
  kernel: negative_exponential
  alpha: 0.02
transition:
  exhaustive: true
  groups:
    - healthy: oak
      infected: [oak_sick]
      rows_file: oak.csv
      overrides:
        above_range: kill_all
        tolerance: 0.01
`)
	cfg, err := Parse(data, "/data/run")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.Timesteps != 3 || cfg.Simulation.Timestep != 1 {
		t.Errorf("simulation = %+v", cfg.Simulation)
	}
	if cfg.Landscape.Width != 100 {
		t.Error("defaults lost under overlay")
	}
	g := cfg.Transition.Groups[0]
	if g.Name != "oak" || g.Provider != ProviderRows {
		t.Errorf("group defaults not filled: %+v", g)
	}
	p := cfg.Derived.Groups[0].Policies
	if p.Above != transition.AboveKillAll || p.Tolerance != 0.01 || !p.Exhaustive || p.Below != transition.BelowIgnore {
		t.Errorf("policies = %+v", p)
	}
	if got := cfg.Path(g.RowsFile); got != filepath.Join("/data/run", "oak.csv") {
		t.Errorf("Path = %q", got)
	}
	if got := cfg.Path("/abs.csv"); got != "/abs.csv" {
		t.Errorf("Path(abs) = %q", got)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"timestep", "simulation: {timestep: 0}"},
		{"grid", "landscape: {width: 0}"},
		{"kernel", "dispersal: {kernel: gaussian}"},
		{"kernel params", "dispersal: {kernel: power_law, alpha: -1}"},
		{"max distance", "dispersal: {max_distance: 0}"},
		{"policy", "transition: {missing_age: spline}"},
		{"provider", "transition: {groups: [{healthy: a, infected: [b], provider: neural}]}"},
		{"rows missing", "transition: {groups: [{healthy: a, infected: [b]}]}"},
		{"coefficient ages", "transition: {groups: [{healthy: a, infected: [b], provider: coefficients, coefficients_file: c.csv, min_age: 5, max_age: 1}]}"},
		{"driver", "telemetry: {driver: ftp}"},
		{"field", "telemetry: {export_fields: [heat]}"},
		{"new cohort biomass", "biomass: {new_cohort_biomass: 0}"},
		{"syntax", "simulation: ["},
		{"frozen ages", "simulation: {grow_years: 0}\ntransition: {below_range: error}"},
		{"frozen ages override", `
simulation: {grow_years: 0}
transition:
  groups:
    - healthy: a
      infected: [b]
      rows_file: a.csv
      overrides: {below_range: error}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "")
			if !errors.Is(err, simerr.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestExplicitZeroTolerance(t *testing.T) {
	cfg, err := Parse([]byte("transition:\n  tolerance: 0\n"), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transition.Tolerance != 0 {
		t.Errorf("tolerance = %g, want 0", cfg.Transition.Tolerance)
	}
	for _, g := range cfg.Derived.Groups {
		if g.Policies.Tolerance != 0 {
			t.Errorf("group %q tolerance = %g, want 0", g.Name, g.Policies.Tolerance)
		}
	}

	cfg, err = Default()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transition.Tolerance != transition.DefaultTolerance {
		t.Errorf("default tolerance = %g, want %g", cfg.Transition.Tolerance, transition.DefaultTolerance)
	}
}

func TestGrowYearsZeroWithIgnoredBelowRange(t *testing.T) {
	cfg, err := Parse([]byte("simulation: {grow_years: 0}\ntransition: {below_range: ignore}"), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.GrowYears != 0 {
		t.Errorf("grow_years = %d", cfg.Simulation.GrowYears)
	}
}

func TestLoadAndWriteYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(path, []byte("simulation: {seed: 42}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.Seed != 42 || cfg.Derived.BaseDir != dir {
		t.Errorf("loaded %+v base %q", cfg.Simulation, cfg.Derived.BaseDir)
	}

	out := filepath.Join(dir, "effective.yaml")
	if err := cfg.WriteYAML(out); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var back Config
	if err := yaml.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.Simulation.Seed != 42 || back.Dispersal.P2 != 0.05 || len(back.Transition.Groups) != 1 {
		t.Errorf("round trip lost values: %+v", back.Simulation)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected missing file error")
	}
}

func TestInitAndCfg(t *testing.T) {
	defer func() { global = nil }()
	if err := Init(""); err != nil {
		t.Fatal(err)
	}
	if Cfg().Landscape.CellLength != 30 {
		t.Errorf("cell length = %v", Cfg().Landscape.CellLength)
	}
}
