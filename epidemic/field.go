// Package epidemic advances the per-site susceptible/infected/diseased
// probabilities across the landscape.
//
// Each timestep builds a host index field from cohort composition, normalizes
// it over the dispersal neighborhood, convolves it with the dispersal lookup
// to get a force of infection, and takes one explicit Euler step. Observed
// composition overrides the continuous state wherever a site's infection
// status flips.
package epidemic

import (
	"github.com/pthm-cable/blight/landscape"
	"github.com/pthm-cable/blight/simerr"
)

// Field is the double-buffered epidemic state, indexed by site. Entries of
// inactive sites are never read or written.
type Field struct {
	S, I, D []float64

	nextS, nextI, nextD []float64

	// observed is each site's status at the previous step.
	observed    []Status
	initialized bool
}

// NewField allocates state for every site of g. All probabilities start at
// zero until the first observation.
func NewField(g *landscape.Grid) *Field {
	n := g.Size()
	return &Field{
		S:        make([]float64, n),
		I:        make([]float64, n),
		D:        make([]float64, n),
		nextS:    make([]float64, n),
		nextI:    make([]float64, n),
		nextD:    make([]float64, n),
		observed: make([]Status, n),
	}
}

// Initialized reports whether the first observation has been applied.
func (f *Field) Initialized() bool { return f.initialized }

// Observed returns the status recorded for site i at the last observation.
func (f *Field) Observed(i int) Status { return f.observed[i] }

// swap publishes the next buffers.
func (f *Field) swap() {
	f.S, f.nextS = f.nextS, f.S
	f.I, f.nextI = f.nextI, f.I
	f.D, f.nextD = f.nextD, f.D
}

func (f *Field) set(i int, s, inf, d float64) {
	f.S[i], f.I[i], f.D[i] = s, inf, d
}

// Observe applies observed composition as ground truth. On the first call
// every healthy site becomes susceptible and every infected site infected;
// ignored sites are left untouched. Later calls reset only sites whose status
// changed to healthy or infected. It returns the number of sites reset.
func (f *Field) Observe(g *landscape.Grid, statuses []Status) int {
	var reset int
	for _, i := range g.ActiveIndices() {
		st := statuses[i]
		if f.initialized && st == f.observed[i] {
			continue
		}
		switch st {
		case StatusHealthy:
			f.set(i, 1, 0, 0)
			reset++
		case StatusInfected:
			f.set(i, 0, 1, 0)
			reset++
		}
		f.observed[i] = st
	}
	f.initialized = true
	return reset
}

// Infectious returns I+D at site i.
func (f *Field) Infectious(i int) float64 { return f.I[i] + f.D[i] }

// FieldMin returns the minimum of values over active sites.
func FieldMin(g *landscape.Grid, values []float64) (float64, error) {
	idx := g.ActiveIndices()
	if len(idx) == 0 {
		return 0, simerr.Assertf("field minimum over an empty active-site set")
	}
	m := values[idx[0]]
	for _, i := range idx[1:] {
		m = min(m, values[i])
	}
	return m, nil
}

// FieldMax returns the maximum of values over active sites.
func FieldMax(g *landscape.Grid, values []float64) (float64, error) {
	idx := g.ActiveIndices()
	if len(idx) == 0 {
		return 0, simerr.Assertf("field maximum over an empty active-site set")
	}
	m := values[idx[0]]
	for _, i := range idx[1:] {
		m = max(m, values[i])
	}
	return m, nil
}
