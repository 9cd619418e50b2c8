// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/blight/blob/s3"
	"github.com/pthm-cable/blight/dispersal"
	"github.com/pthm-cable/blight/epidemic"
	"github.com/pthm-cable/blight/simerr"
	"github.com/pthm-cable/blight/transition"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Landscape  LandscapeConfig  `yaml:"landscape"`
	Dispersal  DispersalConfig  `yaml:"dispersal"`
	Epidemic   EpidemicConfig   `yaml:"epidemic"`
	Transition TransitionConfig `yaml:"transition"`
	Biomass    BiomassConfig    `yaml:"biomass"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds run-level settings.
type SimulationConfig struct {
	Timestep  float64 `yaml:"timestep"`   // Δt of the Euler step
	Timesteps int     `yaml:"timesteps"`  // number of Advance calls the CLI makes
	Seed      int64   `yaml:"seed"`       // RNG seed; 0 picks one from the clock
	Workers   int     `yaml:"workers"`    // force-of-infection workers; 0 = NumCPU
	GrowYears int     `yaml:"grow_years"` // cohort age increment between timesteps
}

// LandscapeConfig describes the grid and its input rasters.
type LandscapeConfig struct {
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	CellLength    float64 `yaml:"cell_length"`
	ActiveMask    string  `yaml:"active_mask"`    // PNG, nonzero = active; empty = all active
	InfectionMask string  `yaml:"infection_mask"` // PNG, 1 = initially infected
	Cohorts       string  `yaml:"cohorts"`        // CSV x,y,species,age,biomass
}

// DispersalConfig selects the kernel and its neighborhood.
type DispersalConfig struct {
	Kernel           dispersal.Kind `yaml:"kernel"`
	dispersal.Params `yaml:",inline"`
	MaxDistance      float64 `yaml:"max_distance"`
}

// EpidemicConfig holds the host index and progression settings.
type EpidemicConfig struct {
	Aggregation     epidemic.Aggregation  `yaml:"aggregation"`
	ProgressionRate float64               `yaml:"progression_rate"`
	HostIndexTable  string                `yaml:"host_index_table"` // takes precedence over Hosts
	Hosts           []epidemic.HostRecord `yaml:"hosts"`
}

// Transition data providers.
const (
	ProviderRows         = "rows"
	ProviderCoefficients = "coefficients"
)

// TransitionConfig holds the global policies and the groups.
type TransitionConfig struct {
	transition.Policies `yaml:",inline"`
	Groups              []GroupConfig `yaml:"groups"`
	ExtraSpecies        []string      `yaml:"extra_species"`
}

// GroupConfig configures one healthy species and its infected forms.
type GroupConfig struct {
	Name     string   `yaml:"name"`
	Healthy  string   `yaml:"healthy"`
	Infected []string `yaml:"infected"`
	Provider string   `yaml:"provider"`

	Rows     []transition.RowRecord `yaml:"rows,omitempty"`
	RowsFile string                 `yaml:"rows_file,omitempty"`

	Coefficients     []transition.CoefficientRecord `yaml:"coefficients,omitempty"`
	CoefficientsFile string                         `yaml:"coefficients_file,omitempty"`
	MinAge           int                            `yaml:"min_age,omitempty"`
	MaxAge           int                            `yaml:"max_age,omitempty"`

	Overrides transition.Override `yaml:"overrides,omitempty"`
}

// BiomassConfig holds proportioning and regrowth settings.
type BiomassConfig struct {
	ResproutLongevity   int     `yaml:"resprout_longevity"`
	ResproutProbability float64 `yaml:"resprout_probability"`
	NewCohortBiomass    int     `yaml:"new_cohort_biomass"`
}

// TelemetryConfig holds output and observability settings.
type TelemetryConfig struct {
	OutputDir     string    `yaml:"output_dir"`
	Driver        string    `yaml:"driver"` // fs|memory|s3
	Prefix        string    `yaml:"prefix"`
	QueueCapacity int       `yaml:"queue_capacity"`
	ExportFields  []string  `yaml:"export_fields"` // any of shi, shim, foi
	MetricsAddr   string    `yaml:"metrics_addr"`
	PerfWindow    int       `yaml:"perf_window"`
	LogLevel      string    `yaml:"log_level"`
	S3            s3.Config `yaml:"s3"`
}

// DerivedConfig holds values computed from loaded config.
type DerivedConfig struct {
	// BaseDir anchors relative input paths; it is the config file's directory.
	BaseDir string
	// Groups mirrors Transition.Groups with overrides applied.
	Groups []transition.Group
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	return Parse(nil, "")
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse overlays data on the embedded defaults, then derives and validates.
// baseDir anchors relative input paths.
func Parse(data []byte, baseDir string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	// Unmarshal into same struct - only overwrites fields present in data
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config file: %v", simerr.ErrConfiguration, err)
		}
	}
	cfg.Derived.BaseDir = baseDir
	cfg.computeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived fills defaults that depend on other fields.
func (c *Config) computeDerived() {
	if c.Simulation.Workers <= 0 {
		c.Simulation.Workers = runtime.NumCPU()
	}

	c.Derived.Groups = make([]transition.Group, len(c.Transition.Groups))
	for i := range c.Transition.Groups {
		g := &c.Transition.Groups[i]
		if g.Name == "" {
			g.Name = g.Healthy
		}
		if g.Provider == "" {
			g.Provider = ProviderRows
		}
		if g.Provider == ProviderCoefficients && g.MinAge == 0 {
			g.MinAge = 1
		}
		c.Derived.Groups[i] = transition.Group{
			Name:     g.Name,
			Healthy:  g.Healthy,
			Infected: g.Infected,
			Policies: c.Transition.Policies.With(g.Overrides),
		}
	}
}

// Validate checks settings that can be judged without reading input files.
func (c *Config) Validate() error {
	s := c.Simulation
	if !(s.Timestep > 0) {
		return simerr.Configf("simulation.timestep must be > 0, got %g", s.Timestep)
	}
	if s.Timesteps < 0 {
		return simerr.Configf("simulation.timesteps must be >= 0, got %d", s.Timesteps)
	}
	if s.GrowYears < 0 {
		return simerr.Configf("simulation.grow_years must be >= 0, got %d", s.GrowYears)
	}
	if l := c.Landscape; l.Width <= 0 || l.Height <= 0 || !(l.CellLength > 0) {
		return simerr.Configf("landscape needs positive width, height and cell_length, got %dx%d @ %g", l.Width, l.Height, l.CellLength)
	}
	if !(c.Dispersal.MaxDistance > 0) {
		return simerr.Configf("dispersal.max_distance must be > 0, got %g", c.Dispersal.MaxDistance)
	}
	if _, err := dispersal.NewKernel(c.Dispersal.Kernel, c.Dispersal.Params); err != nil {
		return err
	}
	if c.Epidemic.ProgressionRate < 0 {
		return simerr.Configf("epidemic.progression_rate must be >= 0, got %g", c.Epidemic.ProgressionRate)
	}
	if c.Epidemic.HostIndexTable == "" && len(c.Epidemic.Hosts) == 0 {
		return simerr.Configf("epidemic: host_index_table or hosts is required")
	}
	if err := c.Transition.Policies.Validate(); err != nil {
		return err
	}
	for _, g := range c.Transition.Groups {
		if err := g.validate(); err != nil {
			return err
		}
	}
	if s.GrowYears == 0 {
		// Resprouts are planted at age 0 and would never age into a
		// matrix that starts at age 1.
		for _, g := range c.Derived.Groups {
			if g.Policies.Below == transition.BelowError {
				return simerr.Configf("group %q: below_range error needs simulation.grow_years >= 1", g.Name)
			}
		}
	}
	if c.Biomass.NewCohortBiomass < 1 {
		return simerr.Configf("biomass.new_cohort_biomass must be >= 1, got %d", c.Biomass.NewCohortBiomass)
	}
	switch c.Telemetry.Driver {
	case "", "fs", "memory", "s3":
	default:
		return simerr.Configf("telemetry.driver %q is not one of fs, memory, s3", c.Telemetry.Driver)
	}
	for _, f := range c.Telemetry.ExportFields {
		switch f {
		case "shi", "shim", "foi":
		default:
			return simerr.Configf("telemetry.export_fields: unknown field %q", f)
		}
	}
	return nil
}

func (g GroupConfig) validate() error {
	switch g.Provider {
	case ProviderRows:
		if len(g.Rows) == 0 && g.RowsFile == "" {
			return simerr.Configf("group %q: rows provider needs rows or rows_file", g.Name)
		}
	case ProviderCoefficients:
		if len(g.Coefficients) == 0 && g.CoefficientsFile == "" {
			return simerr.Configf("group %q: coefficients provider needs coefficients or coefficients_file", g.Name)
		}
		if g.MinAge < 0 || g.MaxAge < g.MinAge {
			return simerr.Configf("group %q: coefficient age range %d..%d is invalid", g.Name, g.MinAge, g.MaxAge)
		}
	default:
		return simerr.Configf("group %q: unknown provider %q (expected rows or coefficients)", g.Name, g.Provider)
	}
	return nil
}

// Path resolves p against the config file's directory. Absolute and empty
// paths are returned unchanged.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Derived.BaseDir == "" {
		return p
	}
	return filepath.Join(c.Derived.BaseDir, p)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
