package sim

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/pthm-cable/blight/config"
	"github.com/pthm-cable/blight/dispersal"
	"github.com/pthm-cable/blight/epidemic"
	"github.com/pthm-cable/blight/landscape"
	"github.com/pthm-cable/blight/simerr"
	"github.com/pthm-cable/blight/transition"
)

// BuildLookup builds the dispersal kernel and its normalized lookup table
// for the grid's cell length.
func BuildLookup(cfg *config.Config, g *landscape.Grid) (*dispersal.Lookup, error) {
	k, err := dispersal.NewKernel(cfg.Dispersal.Kernel, cfg.Dispersal.Params)
	if err != nil {
		return nil, err
	}
	return dispersal.Build(k, cfg.Dispersal.MaxDistance, g.CellLength)
}

// BuildHostTable reads the host-index table file, or the inline hosts when
// no file is configured.
func BuildHostTable(cfg *config.Config) (*epidemic.HostTable, error) {
	var profiles []epidemic.HostProfile
	if path := cfg.Epidemic.HostIndexTable; path != "" {
		p, err := epidemic.ReadHostProfilesFile(cfg.Path(path))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", simerr.ErrConfiguration, err)
		}
		profiles = p
	} else {
		for _, rec := range cfg.Epidemic.Hosts {
			profiles = append(profiles, rec.Profile())
		}
	}
	return epidemic.NewHostTable(profiles, cfg.Epidemic.Aggregation)
}

// BuildRegistry creates the transition groups and loads every group's
// matrices from its provider. Host species and configured extras are valid
// transition targets.
func BuildRegistry(cfg *config.Config, hosts *epidemic.HostTable, logger *slog.Logger) (*transition.Registry, error) {
	extras := append([]string(nil), cfg.Transition.ExtraSpecies...)
	if hosts != nil {
		extras = append(extras, hosts.Species()...)
	}
	reg, err := transition.NewRegistry(cfg.Derived.Groups, extras)
	if err != nil {
		return nil, err
	}

	for _, g := range cfg.Transition.Groups {
		if err := loadGroup(cfg, reg, g); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
	}
	if err := reg.Check(); err != nil {
		return nil, err
	}

	if logger != nil {
		for _, g := range reg.Groups() {
			for _, s := range append([]string{g.Healthy}, g.Infected...) {
				if m, ok := reg.Matrix(s); ok {
					lo, hi := m.AgeRange()
					logger.Debug("transition matrix", "group", g.Name, "species", s, "min_age", lo, "max_age", hi, "rows", len(m.Rows()))
				}
			}
		}
	}
	return reg, nil
}

func loadGroup(cfg *config.Config, reg *transition.Registry, g config.GroupConfig) error {
	gi, _ := reg.GroupOf(g.Healthy)
	// Unknown species fall through to the registry, which suggests a name.
	member := func(species string) error {
		if other, ok := reg.GroupOf(species); ok && other != gi {
			return simerr.Configf("species %q belongs to group %q", species, reg.Groups()[other].Name)
		}
		return nil
	}

	switch g.Provider {
	case config.ProviderRows:
		records := append([]transition.RowRecord(nil), g.Rows...)
		if g.RowsFile != "" {
			file, err := transition.ReadRowsFile(cfg.Path(g.RowsFile))
			if err != nil {
				return fmt.Errorf("%w: %v", simerr.ErrConfiguration, err)
			}
			records = append(records, file...)
		}
		for _, r := range records {
			if err := member(r.Species); err != nil {
				return err
			}
		}
		return reg.AddRecords(records)

	case config.ProviderCoefficients:
		records := append([]transition.CoefficientRecord(nil), g.Coefficients...)
		if g.CoefficientsFile != "" {
			file, err := transition.ReadCoefficientsFile(cfg.Path(g.CoefficientsFile))
			if err != nil {
				return fmt.Errorf("%w: %v", simerr.ErrConfiguration, err)
			}
			records = append(records, file...)
		}
		grouped := transition.GroupCoefficients(records)
		species := make([]string, 0, len(grouped))
		for s := range grouped {
			species = append(species, s)
		}
		sort.Strings(species)
		for _, s := range species {
			if err := member(s); err != nil {
				return err
			}
			if err := reg.AddCoefficients(grouped[s], g.MinAge, g.MaxAge); err != nil {
				return err
			}
		}
		return nil
	}
	return simerr.Configf("unknown provider %q", g.Provider)
}
