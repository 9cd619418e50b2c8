package transition

import (
	"fmt"
	"io"
	"sort"

	"github.com/pthm-cable/blight/simerr"
)

// Group is one healthy species and the infected pseudo-species that share
// its transition configuration.
type Group struct {
	Name     string
	Healthy  string
	Infected []string
	Policies Policies
}

// Registry holds the groups and the matrix of every species that has one.
// It is built once at startup and read-only afterwards.
type Registry struct {
	groups   []Group
	groupOf  map[string]int
	infected map[string]bool
	known    []string
	matrices map[string]*Matrix
}

// NewRegistry validates groups. extraSpecies names species that may appear
// as transition targets without belonging to a group.
func NewRegistry(groups []Group, extraSpecies []string) (*Registry, error) {
	if len(groups) == 0 {
		return nil, simerr.Configf("at least one transition group is required")
	}
	r := &Registry{
		groups:   make([]Group, len(groups)),
		groupOf:  make(map[string]int),
		infected: make(map[string]bool),
		matrices: make(map[string]*Matrix),
	}
	claim := func(species string, gi int) error {
		if species == "" {
			return simerr.Configf("group %q: empty species name", groups[gi].Name)
		}
		if species == Death {
			return simerr.Configf("group %q: %q is reserved", groups[gi].Name, Death)
		}
		if prev, dup := r.groupOf[species]; dup {
			return simerr.Configf("species %q is assigned to groups %q and %q",
				species, groups[prev].Name, groups[gi].Name)
		}
		r.groupOf[species] = gi
		return nil
	}

	for gi, g := range groups {
		if err := g.Policies.Validate(); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
		if len(g.Infected) == 0 {
			return nil, simerr.Configf("group %q: needs at least one infected species", g.Name)
		}
		if err := claim(g.Healthy, gi); err != nil {
			return nil, err
		}
		for _, s := range g.Infected {
			if err := claim(s, gi); err != nil {
				return nil, err
			}
			r.infected[s] = true
		}
		g.Infected = append([]string(nil), g.Infected...)
		r.groups[gi] = g
	}

	seen := make(map[string]bool)
	for s := range r.groupOf {
		seen[s] = true
	}
	for _, s := range extraSpecies {
		seen[s] = true
	}
	for s := range seen {
		r.known = append(r.known, s)
	}
	sort.Strings(r.known)
	return r, nil
}

// Groups returns the configured groups.
func (r *Registry) Groups() []Group { return r.groups }

// GroupOf returns the group index of species.
func (r *Registry) GroupOf(species string) (int, bool) {
	gi, ok := r.groupOf[species]
	return gi, ok
}

// IsInfected reports whether species is an infected pseudo-species.
func (r *Registry) IsInfected(species string) bool { return r.infected[species] }

// IsHealthy reports whether species is a group's healthy species.
func (r *Registry) IsHealthy(species string) bool {
	gi, ok := r.groupOf[species]
	return ok && r.groups[gi].Healthy == species
}

// Known reports whether species is a group member or a declared extra.
func (r *Registry) Known(species string) bool {
	i := sort.SearchStrings(r.known, species)
	return i < len(r.known) && r.known[i] == species
}

func (r *Registry) unknown(what, species string) error {
	return simerr.Configf("%s references unknown species %q%s", what, species, didYouMean(species, r.known))
}

// AddRows builds and registers the matrix for species from authored rows,
// using the policies of its group.
func (r *Registry) AddRows(species string, rows map[int]Distribution) error {
	gi, ok := r.groupOf[species]
	if !ok {
		return r.unknown("transition rows", species)
	}
	if _, dup := r.matrices[species]; dup {
		return simerr.Configf("species %q: transition rows supplied twice", species)
	}
	for age, d := range rows {
		for _, e := range d {
			if e.Target != Death && !r.Known(e.Target) {
				return r.unknown(fmt.Sprintf("species %q age %d", species, age), e.Target)
			}
		}
	}
	g := r.groups[gi]
	m, err := NewMatrix(species, g.Healthy, rows, g.Policies)
	if err != nil {
		return err
	}
	r.matrices[species] = m
	return nil
}

// AddRecords registers matrices for every species in records.
func (r *Registry) AddRecords(records []RowRecord) error {
	grouped := GroupRows(records)
	species := make([]string, 0, len(grouped))
	for s := range grouped {
		species = append(species, s)
	}
	sort.Strings(species)
	for _, s := range species {
		if err := r.AddRows(s, grouped[s]); err != nil {
			return err
		}
	}
	return nil
}

// AddCoefficients evaluates c over [minAge, maxAge] and registers the
// resulting matrix.
func (r *Registry) AddCoefficients(c *Coefficients, minAge, maxAge int) error {
	gi, ok := r.groupOf[c.Species]
	if !ok {
		return r.unknown("transition coefficients", c.Species)
	}
	rows, err := c.Evaluate(minAge, maxAge, r.groups[gi].Policies.Exhaustive)
	if err != nil {
		return err
	}
	return r.AddRows(c.Species, rows)
}

// Check verifies every group's healthy species has a matrix.
func (r *Registry) Check() error {
	for _, g := range r.groups {
		if _, ok := r.matrices[g.Healthy]; !ok {
			return simerr.Configf("group %q: healthy species %q has no transition matrix", g.Name, g.Healthy)
		}
	}
	return nil
}

// Matrix returns the matrix for species.
func (r *Registry) Matrix(species string) (*Matrix, bool) {
	m, ok := r.matrices[species]
	return m, ok
}

// Distribution returns the row for a cohort. Species without a matrix never
// transition.
func (r *Registry) Distribution(species string, age int) (Distribution, bool, error) {
	m, ok := r.matrices[species]
	if !ok {
		return nil, false, nil
	}
	return m.Distribution(age)
}

// Records flattens every matrix, gap-filled rows included, ordered by
// species then age.
func (r *Registry) Records() []RowRecord {
	species := make([]string, 0, len(r.matrices))
	for s := range r.matrices {
		species = append(species, s)
	}
	sort.Strings(species)

	var out []RowRecord
	for _, s := range species {
		for _, row := range r.matrices[s].Rows() {
			for _, e := range row.Distribution {
				out = append(out, RowRecord{Species: s, Age: row.Age, Target: e.Target, Probability: e.Probability})
			}
		}
	}
	return out
}

// Dump writes every matrix as a transition table.
func (r *Registry) Dump(w io.Writer) error {
	return WriteRows(w, r.Records())
}

// HealthyOf returns the healthy species of the group species belongs to.
func (r *Registry) HealthyOf(species string) (string, bool) {
	gi, ok := r.groupOf[species]
	if !ok {
		return "", false
	}
	return r.groups[gi].Healthy, true
}
