package epidemic

import (
	"math/rand"

	"github.com/pthm-cable/blight/dispersal"
	"github.com/pthm-cable/blight/landscape"
)

// Options configures an Engine.
type Options struct {
	// Timestep is the Euler step size Δt.
	Timestep float64
	// ProgressionRate ρ moves infected mass to diseased. Zero disables it.
	ProgressionRate float64
	// Workers bounds the force-of-infection worker pool; <= 0 uses GOMAXPROCS.
	Workers int
}

// Fields are the diagnostic fields of one timestep, indexed by site.
type Fields struct {
	HostIndex         []float64
	ModifiedHostIndex []float64
	ForceOfInfection  []float64
}

// Engine computes host index normalization, force of infection and the
// probability update over a fixed grid and dispersal lookup.
type Engine struct {
	grid   *landscape.Grid
	lookup *dispersal.Lookup
	opts   Options
	pool   *workerPool
}

// NewEngine creates an engine. Close releases its workers.
func NewEngine(g *landscape.Grid, lookup *dispersal.Lookup, opts Options) *Engine {
	return &Engine{
		grid:   g,
		lookup: lookup,
		opts:   opts,
		pool:   newWorkerPool(opts.Workers),
	}
}

// Close stops the worker pool.
func (e *Engine) Close() { e.pool.stop() }

// forEachNeighbor calls fn for every active site within the dispersal
// radius of site i, with the neighbor's lookup weight.
func (e *Engine) forEachNeighbor(i int, fn func(j int, w float64)) {
	x, y := e.grid.XY(i)
	for _, n := range e.lookup.Neighbors() {
		nx, ny := x+n.DX, y+n.DY
		if !e.grid.ActiveAt(nx, ny) {
			continue
		}
		fn(e.grid.Index(nx, ny), n.Weight)
	}
}

// ModifiedHostIndex adds the land-type and disturbance modifiers (both zero)
// and divides each site by the mean modified index of its active
// neighbors. Sites whose neighbor mean is not positive keep the raw value.
func (e *Engine) ModifiedHostIndex(shi []float64) []float64 {
	raw := make([]float64, len(shi))
	for _, i := range e.grid.ActiveIndices() {
		raw[i] = shi[i] + landTypeModifier(i) + disturbanceModifier(i)
	}

	out := make([]float64, len(shi))
	active := e.grid.ActiveIndices()
	e.pool.run(len(active), func(start, end int) {
		for _, i := range active[start:end] {
			var sum float64
			var n int
			e.forEachNeighbor(i, func(j int, _ float64) {
				sum += raw[j]
				n++
			})
			out[i] = raw[i]
			if n > 0 {
				if mean := sum / float64(n); mean > 0 {
					out[i] = raw[i] / mean
				}
			}
		}
	})
	return out
}

// landTypeModifier is the host index adjustment for the site's land type.
// No land-type effects are modeled yet.
func landTypeModifier(int) float64 { return 0 }

// disturbanceModifier is the host index adjustment for recent disturbance.
// No disturbance effects are modeled yet.
func disturbanceModifier(int) float64 { return 0 }

// ForceOfInfection computes FOI for every active site from a read-only view
// of shim and f. Each worker writes only its own sites of a fresh slice.
func (e *Engine) ForceOfInfection(shim []float64, f *Field) []float64 {
	foi := make([]float64, len(shim))
	active := e.grid.ActiveIndices()
	e.pool.run(len(active), func(start, end int) {
		for _, i := range active[start:end] {
			if shim[i] == 0 {
				continue
			}
			var sum float64
			e.forEachNeighbor(i, func(j int, w float64) {
				if inf := f.I[j] + f.D[j]; inf > 0 {
					sum += shim[j] * inf * w
				}
			})
			foi[i] = shim[i] * sum
		}
	})
	return foi
}

// Update takes one explicit Euler step of the S/I/D system driven by foi,
// writes it to the next buffers and swaps them in. Transfers are capped by
// the mass available so probabilities stay in [0,1].
func (e *Engine) Update(f *Field, foi []float64) {
	dt := e.opts.Timestep
	rho := e.opts.ProgressionRate
	for _, i := range e.grid.ActiveIndices() {
		s, inf, d := f.S[i], f.I[i], f.D[i]
		infection := min(foi[i]*s*dt, s)
		progression := min(rho*inf*dt, inf+infection)
		f.nextS[i] = s - infection
		f.nextI[i] = inf + infection - progression
		f.nextD[i] = d + progression
	}
	f.swap()
}

// Step runs one timestep over the field: on the first step the observed
// statuses initialize the state before the update; afterwards the
// continuous update runs first and flipped sites are reset on top of it.
func (e *Engine) Step(f *Field, shi []float64, statuses []Status) Fields {
	first := !f.Initialized()
	if first {
		f.Observe(e.grid, statuses)
	}

	shim := e.ModifiedHostIndex(shi)
	foi := e.ForceOfInfection(shim, f)
	e.Update(f, foi)

	if !first {
		f.Observe(e.grid, statuses)
	}
	return Fields{HostIndex: shi, ModifiedHostIndex: shim, ForceOfInfection: foi}
}

// SelectCandidates returns the healthy sites that become transition
// candidates this step: those whose uniform draw falls at or below their
// force of infection. Sites are drawn in ascending index order.
func SelectCandidates(g *landscape.Grid, statuses []Status, foi []float64, rng *rand.Rand) []int {
	var out []int
	for _, i := range g.ActiveIndices() {
		if statuses[i] != StatusHealthy || foi[i] <= 0 {
			continue
		}
		if rng.Float64() <= foi[i] {
			out = append(out, i)
		}
	}
	return out
}
