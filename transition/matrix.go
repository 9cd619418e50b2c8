// Package transition holds the per-species age transition matrices that
// decide how an infected cohort's biomass is redistributed.
package transition

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/pthm-cable/blight/simerr"
)

// Death is the transition target that removes biomass.
const Death = "DEAD"

// Entry sends Probability of a cohort's biomass to Target.
type Entry struct {
	Target      string
	Probability float64
}

// Distribution is one matrix row. Entries are applied in order; whatever the
// row leaves unassigned stays with the source species.
type Distribution []Entry

// Sum returns the total assigned probability.
func (d Distribution) Sum() float64 {
	var s float64
	for _, e := range d {
		s += e.Probability
	}
	return s
}

// Targets returns the row's targets in order.
func (d Distribution) Targets() []string {
	out := make([]string, len(d))
	for i, e := range d {
		out[i] = e.Target
	}
	return out
}

func (d Distribution) clone() Distribution {
	out := make(Distribution, len(d))
	copy(out, d)
	return out
}

// AgeRow pairs an age with its distribution.
type AgeRow struct {
	Age          int
	Distribution Distribution
}

// Matrix is an immutable age→distribution table for one species.
type Matrix struct {
	species  string
	healthy  string
	policies Policies

	minAge, maxAge int
	rows           map[int]Distribution
	// filled marks ages synthesized by gap filling.
	filled map[int]bool
}

var killAll = Distribution{{Target: Death, Probability: 1}}

// NewMatrix validates rows under p, fills gaps, and returns the matrix.
// healthy is the group's designated healthy species.
func NewMatrix(species, healthy string, rows map[int]Distribution, p Policies) (*Matrix, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if species == "" {
		return nil, simerr.Configf("transition matrix needs a species")
	}
	if len(rows) == 0 {
		return nil, simerr.Configf("species %q: no transition rows", species)
	}

	m := &Matrix{
		species:  species,
		healthy:  healthy,
		policies: p,
		minAge:   math.MaxInt,
		maxAge:   math.MinInt,
		rows:     make(map[int]Distribution, len(rows)),
		filled:   make(map[int]bool),
	}
	for age, d := range rows {
		if age < 0 {
			return nil, simerr.Configf("species %q: negative age %d", species, age)
		}
		if err := checkEntries(species, age, d); err != nil {
			return nil, err
		}
		m.rows[age] = d.clone()
		m.minAge = min(m.minAge, age)
		m.maxAge = max(m.maxAge, age)
	}

	if p.Below == BelowError && m.minAge != 1 {
		return nil, simerr.Configf("species %q: rows must start at age 1, first age is %d", species, m.minAge)
	}
	if err := m.fillGaps(); err != nil {
		return nil, err
	}
	for age := m.minAge; age <= m.maxAge; age++ {
		if err := checkSum(species, age, m.rows[age], p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func checkEntries(species string, age int, d Distribution) error {
	seen := make(map[string]struct{}, len(d))
	for _, e := range d {
		if e.Target == "" {
			return simerr.Configf("species %q age %d: empty target", species, age)
		}
		if !(e.Probability >= 0 && e.Probability <= 1) {
			return simerr.Configf("species %q age %d: probability %g for %q outside [0,1]",
				species, age, e.Probability, e.Target)
		}
		if _, dup := seen[e.Target]; dup {
			return simerr.Configf("species %q age %d: duplicate target %q", species, age, e.Target)
		}
		seen[e.Target] = struct{}{}
	}
	return nil
}

// checkSum applies the row-sum rule. Exhaustive rows must equal 1 within
// tolerance; otherwise the sum may only exceed 1 by tolerance.
func checkSum(species string, age int, d Distribution, p Policies) error {
	sum := d.Sum()
	if p.Exhaustive {
		if math.Abs(sum-1) > p.Tolerance {
			return simerr.Configf("species %q age %d: probabilities sum to %g, exhaustive rows must sum to 1",
				species, age, sum)
		}
		return nil
	}
	if sum-1.0 > p.Tolerance {
		return simerr.Configf("species %q age %d: probabilities sum to %g, more than 1", species, age, sum)
	}
	return nil
}

func (m *Matrix) fillGaps() error {
	for age := m.minAge; age <= m.maxAge; age++ {
		if _, ok := m.rows[age]; ok {
			continue
		}
		switch m.policies.Gap {
		case GapError:
			return simerr.Configf("species %q: no row for age %d", m.species, age)

		case GapAgeThreshold:
			// Ascending order makes this propagate across the whole gap.
			m.rows[age] = m.rows[age-1]
			m.filled[age] = true

		case GapLinear:
			hi := age + 1
			for ; hi <= m.maxAge; hi++ {
				if _, ok := m.rows[hi]; ok {
					break
				}
			}
			if err := m.interpolate(age-1, hi); err != nil {
				return err
			}
			age = hi
		}
	}
	return nil
}

// interpolate fills the open interval (lo, hi) between two known rows.
func (m *Matrix) interpolate(lo, hi int) error {
	from, to := m.rows[lo], m.rows[hi]
	if len(from) != len(to) {
		return simerr.Configf("species %q: cannot interpolate ages %d..%d, rows have %d and %d targets",
			m.species, lo, hi, len(from), len(to))
	}
	for i := range from {
		if from[i].Target != to[i].Target {
			return simerr.Configf("species %q: cannot interpolate ages %d..%d, target %d is %q vs %q",
				m.species, lo, hi, i, from[i].Target, to[i].Target)
		}
	}

	xs := []float64{float64(lo), float64(hi)}
	fits := make([]interp.PiecewiseLinear, len(from))
	for i := range from {
		if err := fits[i].Fit(xs, []float64{from[i].Probability, to[i].Probability}); err != nil {
			return simerr.Configf("species %q: interpolating %q: %v", m.species, from[i].Target, err)
		}
	}
	for age := lo + 1; age < hi; age++ {
		d := make(Distribution, len(from))
		for i := range from {
			d[i] = Entry{Target: from[i].Target, Probability: fits[i].Predict(float64(age))}
		}
		m.rows[age] = d
		m.filled[age] = true
	}
	return nil
}

// Species returns the species the matrix applies to.
func (m *Matrix) Species() string { return m.species }

// Healthy returns the designated healthy species of the species' group.
func (m *Matrix) Healthy() string { return m.healthy }

// Policies returns the resolved policies.
func (m *Matrix) Policies() Policies { return m.policies }

// AgeRange returns the youngest and oldest recorded ages.
func (m *Matrix) AgeRange() (minAge, maxAge int) { return m.minAge, m.maxAge }

// Distribution returns the row for age. ok is false when the resolved policy
// answers "no transition". Queries the policies rule out return ErrLogic.
func (m *Matrix) Distribution(age int) (d Distribution, ok bool, err error) {
	switch {
	case age < m.minAge:
		if m.policies.Below == BelowIgnore {
			return nil, false, nil
		}
	case age > m.maxAge:
		switch m.policies.Above {
		case AboveUseOldest:
			return m.rows[m.maxAge], true, nil
		case AboveKillAll:
			return killAll, true, nil
		case AboveIgnore:
			return nil, false, nil
		}
	default:
		if d, ok := m.rows[age]; ok {
			return d, true, nil
		}
	}
	return nil, false, simerr.Logicf("species %q: age %d outside resolvable range %d..%d (below=%s, above=%s)",
		m.species, age, m.minAge, m.maxAge, m.policies.Below, m.policies.Above)
}

// Rows returns every row in ascending age order, including filled gaps.
// Returned distributions are copies.
func (m *Matrix) Rows() []AgeRow {
	ages := make([]int, 0, len(m.rows))
	for age := range m.rows {
		ages = append(ages, age)
	}
	sort.Ints(ages)
	out := make([]AgeRow, len(ages))
	for i, age := range ages {
		out[i] = AgeRow{Age: age, Distribution: m.rows[age].clone()}
	}
	return out
}

// Filled reports whether the row at age was synthesized by gap filling.
func (m *Matrix) Filled(age int) bool { return m.filled[age] }
