package cohort

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/blight/simerr"
)

// DefaultNewCohortBiomass is the biomass given to cohorts created by AddCohort.
const DefaultNewCohortBiomass = 1

// MemoryStore is an in-memory Store. It keeps no succession logic beyond
// aging cohorts on request.
type MemoryStore struct {
	sites map[int][]Cohort

	// NewCohortBiomass seeds cohorts created with AddCohort.
	NewCohortBiomass int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sites:            make(map[int][]Cohort),
		NewCohortBiomass: DefaultNewCohortBiomass,
	}
}

// Put appends a cohort to a site, merging with an existing cohort of the same
// species and age.
func (m *MemoryStore) Put(site int, c Cohort) {
	cs := m.sites[site]
	for i := range cs {
		if cs[i].Key() == c.Key() {
			cs[i].Biomass += c.Biomass
			for _, at := range c.Attributes {
				cs[i].Attributes.Add(at.Name, at.Value)
			}
			return
		}
	}
	c.Attributes = c.Attributes.Clone()
	m.sites[site] = append(cs, c)
}

// Cohorts returns the cohorts at a site.
func (m *MemoryStore) Cohorts(site int) []Cohort { return m.sites[site] }

// Snapshot implements Store.
func (m *MemoryStore) Snapshot() Snapshot {
	snap := make(Snapshot, len(m.sites))
	for site, cs := range m.sites {
		out := make([]Cohort, len(cs))
		for i, c := range cs {
			c.Attributes = c.Attributes.Clone()
			out[i] = c
		}
		snap[site] = out
	}
	return snap
}

// Clone returns an independent copy of the store.
func (m *MemoryStore) Clone() *MemoryStore {
	return &MemoryStore{sites: m.Snapshot(), NewCohortBiomass: m.NewCohortBiomass}
}

// Replace implements Store.
func (m *MemoryStore) Replace(site int, cohorts []Cohort) {
	if len(cohorts) == 0 {
		delete(m.sites, site)
		return
	}
	m.sites[site] = cohorts
}

// AddCohort implements Store.
func (m *MemoryStore) AddCohort(site int, species string) {
	m.Put(site, Cohort{Species: species, Age: 0, Biomass: m.NewCohortBiomass})
}

// Grow ages every cohort by years, merging cohorts that collide.
func (m *MemoryStore) Grow(years int) {
	for site, cs := range m.sites {
		m.sites[site] = nil
		for _, c := range cs {
			c.Age += years
			m.Put(site, c)
		}
	}
}

// Sites returns populated site indices in ascending order.
func (m *MemoryStore) Sites() []int {
	sites := make([]int, 0, len(m.sites))
	for s := range m.sites {
		sites = append(sites, s)
	}
	sort.Ints(sites)
	return sites
}

// Record is one row of an initial cohorts table.
type Record struct {
	X       int    `csv:"x"`
	Y       int    `csv:"y"`
	Species string `csv:"species"`
	Age     int    `csv:"age"`
	Biomass int    `csv:"biomass"`
}

// LoadCSV fills a store from a cohorts table. index maps (x, y) to a site
// index and reports whether the site is active; rows on inactive sites are
// rejected.
func LoadCSV(r io.Reader, index func(x, y int) (int, bool)) (*MemoryStore, error) {
	var records []*Record
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("parsing cohorts: %w", err)
	}

	store := NewMemoryStore()
	for n, rec := range records {
		site, ok := index(rec.X, rec.Y)
		if !ok {
			return nil, simerr.Configf("cohorts row %d: site (%d,%d) is not active", n+1, rec.X, rec.Y)
		}
		if rec.Species == "" {
			return nil, simerr.Configf("cohorts row %d: species is empty", n+1)
		}
		if rec.Age < 0 || rec.Biomass < 0 {
			return nil, simerr.Configf("cohorts row %d: negative age or biomass", n+1)
		}
		store.Put(site, Cohort{Species: rec.Species, Age: rec.Age, Biomass: rec.Biomass})
	}
	return store, nil
}

// LoadCSVFile is LoadCSV on a file path.
func LoadCSVFile(path string, index func(x, y int) (int, bool)) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cohorts: %w", err)
	}
	defer f.Close()
	return LoadCSV(f, index)
}
