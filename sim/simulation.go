// Package sim drives one simulation: it owns the epidemic field, resprout
// timers and RNG, and advances them one timestep at a time against a cohort
// snapshot supplied by the host model.
package sim

import (
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/pthm-cable/blight/biomass"
	"github.com/pthm-cable/blight/cohort"
	"github.com/pthm-cable/blight/config"
	"github.com/pthm-cable/blight/dispersal"
	"github.com/pthm-cable/blight/epidemic"
	"github.com/pthm-cable/blight/landscape"
	"github.com/pthm-cable/blight/simerr"
	"github.com/pthm-cable/blight/telemetry"
	"github.com/pthm-cable/blight/transition"
)

// Options carries the collaborators of a Simulation. Zero values are
// replaced with defaults.
type Options struct {
	Logger *slog.Logger
	Perf   *telemetry.PerfCollector
	// Seed overrides cfg.Simulation.Seed when non-zero.
	Seed int64
}

// Resprout is a cohort spawned by a resprout timer.
type Resprout struct {
	Site    int
	Species string
}

// Result is the outcome of one Advance call. Slices indexed by site have
// grid size; inactive entries are zero.
type Result struct {
	Timestep int

	// Cohorts is the updated snapshot. Sites that were neither proportioned
	// nor resprouted share their slices with the input snapshot.
	Cohorts cohort.Snapshot
	// Changed lists the sites whose collection differs from the input.
	Changed []int

	Mortality []float64
	Fields    epidemic.Fields
	Statuses  []epidemic.Status

	// Candidates are the sites proportioned this step, ascending. Forced
	// counts those taken from the initial infection mask.
	Candidates []int
	Forced     int
	Resprouts  []Resprout

	Stats telemetry.TimestepStats

	// proportioned holds candidate sites before seedlings were added.
	proportioned map[int][]cohort.Cohort
}

// MortalitySnapshot packages the mortality raster for export.
func (r Result) MortalitySnapshot(g *landscape.Grid) (telemetry.MortalitySnapshot, error) {
	return telemetry.NewMortalitySnapshot(r.Timestep, g.Width, g.Height, r.Mortality)
}

// Simulation is the explicit simulation context. It is not safe for
// concurrent use; independent Simulations share nothing mutable.
type Simulation struct {
	cfg    *config.Config
	grid   *landscape.Grid
	mask   []bool
	lookup *dispersal.Lookup

	registry *transition.Registry
	hosts    *epidemic.HostTable
	engine   *epidemic.Engine
	field    *epidemic.Field
	timers   *biomass.Timers
	prop     *biomass.Proportioner

	rng    *rand.Rand
	seed   int64
	logger *slog.Logger
	perf   *telemetry.PerfCollector

	newCohortBiomass int
}

// Initialize validates the configuration against the grid and builds every
// immutable table. infectionMask may be nil; otherwise it has grid size and
// marks sites observed infected at the first timestep.
func Initialize(cfg *config.Config, grid *landscape.Grid, infectionMask []bool, opts Options) (*Simulation, error) {
	if infectionMask != nil && len(infectionMask) != grid.Size() {
		return nil, simerr.Configf("infection mask has %d cells, grid has %d", len(infectionMask), grid.Size())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lookup, err := BuildLookup(cfg, grid)
	if err != nil {
		return nil, err
	}
	hosts, err := BuildHostTable(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := BuildRegistry(cfg, hosts, logger)
	if err != nil {
		return nil, err
	}
	timers, err := biomass.NewTimers(cfg.Biomass.ResproutLongevity, cfg.Biomass.ResproutProbability)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Simulation.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulation{
		cfg:      cfg,
		grid:     grid,
		mask:     infectionMask,
		lookup:   lookup,
		registry: registry,
		hosts:    hosts,
		engine: epidemic.NewEngine(grid, lookup, epidemic.Options{
			Timestep:        cfg.Simulation.Timestep,
			ProgressionRate: cfg.Epidemic.ProgressionRate,
			Workers:         cfg.Simulation.Workers,
		}),
		field:            epidemic.NewField(grid),
		timers:           timers,
		prop:             biomass.NewProportioner(registry),
		rng:              rand.New(rand.NewSource(seed)),
		seed:             seed,
		logger:           logger,
		perf:             opts.Perf,
		newCohortBiomass: max(cfg.Biomass.NewCohortBiomass, 1),
	}

	logger.Info("simulation initialized",
		"width", grid.Width,
		"height", grid.Height,
		"active_sites", grid.NumActive(),
		"kernel", lookup.Kernel().String(),
		"radius", lookup.Radius(),
		"groups", len(registry.Groups()),
		"seed", seed,
	)
	return s, nil
}

// Close releases the force-of-infection workers.
func (s *Simulation) Close() { s.engine.Close() }

// Grid returns the landscape grid.
func (s *Simulation) Grid() *landscape.Grid { return s.grid }

// Registry returns the transition registry.
func (s *Simulation) Registry() *transition.Registry { return s.registry }

// Lookup returns the dispersal lookup table.
func (s *Simulation) Lookup() *dispersal.Lookup { return s.lookup }

// Field returns the epidemic state.
func (s *Simulation) Field() *epidemic.Field { return s.field }

// Timers returns the resprout timers.
func (s *Simulation) Timers() *biomass.Timers { return s.timers }

// Seed returns the RNG seed in use.
func (s *Simulation) Seed() int64 { return s.seed }

// Advance runs one timestep over snapshot, which is not modified. The
// pipeline is classify, host index, force of infection and probability
// update, candidate selection, resprout timers, then biomass proportioning
// of the candidate sites. Any returned error is fatal for the run.
func (s *Simulation) Advance(timestep int, snapshot cohort.Snapshot) (Result, error) {
	g := s.grid
	n := g.Size()
	active := g.ActiveIndices()
	first := !s.field.Initialized()

	s.perf.StartStep()
	defer s.perf.EndStep()

	// Classify
	s.perf.StartPhase(telemetry.PhaseClassify)
	statuses := make([]epidemic.Status, n)
	for _, i := range active {
		statuses[i] = epidemic.Classify(snapshot[i], s.registry)
	}
	var forced []int
	if first && s.mask != nil {
		// Masked healthy sites start infected and transition at once.
		for _, i := range active {
			if s.mask[i] && statuses[i] == epidemic.StatusHealthy {
				statuses[i] = epidemic.StatusInfected
				forced = append(forced, i)
			}
		}
	}

	// Host index
	s.perf.StartPhase(telemetry.PhaseHostIndex)
	shi := make([]float64, n)
	for _, i := range active {
		shi[i] = s.hosts.SiteIndex(snapshot[i])
	}

	// Force of infection and probability update
	s.perf.StartPhase(telemetry.PhaseInfection)
	fields := s.engine.Step(s.field, shi, statuses)

	// Candidate selection
	s.perf.StartPhase(telemetry.PhaseCandidates)
	candidates := epidemic.SelectCandidates(g, statuses, fields.ForceOfInfection, s.rng)
	if len(forced) > 0 {
		candidates = mergeSorted(candidates, forced)
	}

	// Existing timers fire before this step's deaths schedule new ones.
	s.perf.StartPhase(telemetry.PhaseResprout)
	var spawns []Resprout
	s.timers.Tick(s.rng, func(site int, species string) {
		spawns = append(spawns, Resprout{Site: site, Species: species})
	})

	// Proportioning
	s.perf.StartPhase(telemetry.PhaseProportion)
	out := make(cohort.Snapshot, len(snapshot))
	for site, cs := range snapshot {
		out[site] = cs
	}
	mortality := make([]float64, n)
	changed := make(map[int]bool, len(candidates)+len(spawns))
	proportioned := make(map[int][]cohort.Cohort, len(candidates))
	totalMortality := 0
	for _, site := range candidates {
		res, err := s.prop.Site(snapshot[site])
		if err != nil {
			return Result{}, err
		}
		setSite(out, site, res.Cohorts)
		proportioned[site] = res.Cohorts
		changed[site] = true
		mortality[site] = float64(res.Mortality)
		totalMortality += res.Mortality
		for _, healthy := range res.Resprout {
			s.timers.Schedule(site, healthy)
		}
	}
	for _, r := range spawns {
		setSite(out, r.Site, addSeedling(out[r.Site], r.Species, s.newCohortBiomass))
		changed[r.Site] = true
	}

	res := Result{
		Timestep:   timestep,
		Cohorts:    out,
		Changed:    sortedKeys(changed),
		Mortality:  mortality,
		Fields:     fields,
		Statuses:   statuses,
		Candidates: candidates,
		Forced:     len(forced),
		Resprouts:  spawns,

		proportioned: proportioned,
	}
	res.Stats = s.stats(res, totalMortality)
	return res, nil
}

// AdvanceStore runs Advance on the store's snapshot and writes the changed
// sites back: proportioned sites through Replace, then resprouts through
// AddCohort.
func (s *Simulation) AdvanceStore(timestep int, store cohort.Store) (Result, error) {
	res, err := s.Advance(timestep, store.Snapshot())
	if err != nil {
		return Result{}, err
	}
	for _, site := range res.Candidates {
		store.Replace(site, res.proportioned[site])
	}
	for _, r := range res.Resprouts {
		store.AddCohort(r.Site, r.Species)
	}
	return res, nil
}

func (s *Simulation) stats(res Result, mortality int) telemetry.TimestepStats {
	active := s.grid.ActiveIndices()
	st := telemetry.TimestepStats{
		Timestep:         res.Timestep,
		ActiveSites:      len(active),
		Candidates:       len(res.Candidates),
		ForcedCandidates: res.Forced,
		Mortality:        mortality,
		Resprouts:        len(res.Resprouts),
		LiveTimers:       s.timers.Len(),
		TotalBiomass:     res.Cohorts.TotalBiomass(),
	}
	for _, i := range active {
		switch res.Statuses[i] {
		case epidemic.StatusHealthy:
			st.HealthySites++
		case epidemic.StatusInfected:
			st.InfectedSites++
		default:
			st.IgnoredSites++
		}
	}
	if len(active) > 0 {
		st.InfectedFraction = float64(st.InfectedSites) / float64(len(active))
	}

	st.SusceptibleMean = telemetry.SummarizeField(telemetry.Gather(s.field.S, active)).Mean
	st.InfectedMean = telemetry.SummarizeField(telemetry.Gather(s.field.I, active)).Mean
	st.DiseasedMean = telemetry.SummarizeField(telemetry.Gather(s.field.D, active)).Mean

	shi := telemetry.SummarizeField(telemetry.Gather(res.Fields.HostIndex, active))
	shim := telemetry.SummarizeField(telemetry.Gather(res.Fields.ModifiedHostIndex, active))
	foi := telemetry.SummarizeField(telemetry.Gather(res.Fields.ForceOfInfection, active))
	st.HostIndexMean, st.HostIndexMax = shi.Mean, shi.Max
	st.ModifiedMean, st.ModifiedMax = shim.Mean, shim.Max
	st.FOIMean, st.FOIMax, st.FOIP90 = foi.Mean, foi.Max, foi.P90
	return st
}

func setSite(snap cohort.Snapshot, site int, cs []cohort.Cohort) {
	if len(cs) == 0 {
		delete(snap, site)
		return
	}
	snap[site] = cs
}

// addSeedling returns a copy of cs with biomass added to the age-0 cohort of
// species, creating it if needed.
func addSeedling(cs []cohort.Cohort, species string, biomass int) []cohort.Cohort {
	out := make([]cohort.Cohort, len(cs), len(cs)+1)
	copy(out, cs)
	for i := range out {
		if out[i].Species == species && out[i].Age == 0 {
			out[i].Biomass += biomass
			return out
		}
	}
	return append(out, cohort.Cohort{Species: species, Age: 0, Biomass: biomass})
}

// mergeSorted merges two ascending site lists, dropping duplicates.
func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var v int
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			v, i = a[i], i+1
		case i == len(a) || b[j] < a[i]:
			v, j = b[j], j+1
		default:
			v, i, j = a[i], i+1, j+1
		}
		out = append(out, v)
	}
	return out
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
