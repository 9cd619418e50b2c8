// Package cohort models the per-site vegetation cohorts the epidemic acts on
// and the capability interface of the host cohort store.
package cohort

import (
	"fmt"
	"sort"

	"github.com/pthm-cable/blight/simerr"
)

// Attr is one named auxiliary count carried alongside a cohort's biomass.
type Attr struct {
	Name  string
	Value int
}

// Attributes is an ordered name→integer mapping. Order is insertion order and
// is preserved by every operation so apportioned copies line up with their
// source.
type Attributes []Attr

// Validate checks names are non-empty and unique and values non-negative.
func (a Attributes) Validate() error {
	seen := make(map[string]struct{}, len(a))
	for _, at := range a {
		if at.Name == "" {
			return simerr.Configf("cohort attribute with empty name")
		}
		if _, dup := seen[at.Name]; dup {
			return simerr.Configf("duplicate cohort attribute %q", at.Name)
		}
		if at.Value < 0 {
			return simerr.Configf("cohort attribute %q is negative (%d)", at.Name, at.Value)
		}
		seen[at.Name] = struct{}{}
	}
	return nil
}

// Get returns the value for name.
func (a Attributes) Get(name string) (int, bool) {
	for _, at := range a {
		if at.Name == name {
			return at.Value, true
		}
	}
	return 0, false
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

// Add increments name by v, appending it if absent.
func (a *Attributes) Add(name string, v int) {
	for i := range *a {
		if (*a)[i].Name == name {
			(*a)[i].Value += v
			return
		}
	}
	*a = append(*a, Attr{Name: name, Value: v})
}

// Sum returns the total over all attributes.
func (a Attributes) Sum() int {
	var s int
	for _, at := range a {
		s += at.Value
	}
	return s
}

// Cohort is a same-species, same-age biomass group at a site.
type Cohort struct {
	Species    string
	Age        int
	Biomass    int
	Attributes Attributes
}

func (c Cohort) String() string {
	return fmt.Sprintf("%s@%d(%d)", c.Species, c.Age, c.Biomass)
}

// Key identifies a cohort within a site.
type Key struct {
	Species string
	Age     int
}

// Key returns the cohort's (species, age) key.
func (c Cohort) Key() Key { return Key{Species: c.Species, Age: c.Age} }

// Snapshot maps an active site index to its cohorts.
type Snapshot map[int][]Cohort

// Sites returns the snapshot's site indices in ascending order.
func (s Snapshot) Sites() []int {
	sites := make([]int, 0, len(s))
	for i := range s {
		sites = append(sites, i)
	}
	sort.Ints(sites)
	return sites
}

// TotalBiomass sums biomass across all sites.
func (s Snapshot) TotalBiomass() int {
	var total int
	for _, cs := range s {
		for _, c := range cs {
			total += c.Biomass
		}
	}
	return total
}

// OldestAge returns the age of the oldest cohort of species at a site, or
// -1 if the species is absent.
func OldestAge(cohorts []Cohort, species string) int {
	oldest := -1
	for _, c := range cohorts {
		if c.Species == species && c.Biomass > 0 && c.Age > oldest {
			oldest = c.Age
		}
	}
	return oldest
}

// Store is the host model's cohort storage as seen by the simulation core.
type Store interface {
	// Snapshot returns a copy of the cohorts at every populated site.
	Snapshot() Snapshot
	// Replace swaps a site's cohort collection wholesale.
	Replace(site int, cohorts []Cohort)
	// AddCohort creates a new age-0 cohort of species at site.
	AddCohort(site int, species string)
}
