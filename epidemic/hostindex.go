package epidemic

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/blight/cohort"
	"github.com/pthm-cable/blight/simerr"
)

// MaxScore is the upper bound of a competency score.
const MaxScore = 10

// Aggregation combines per-species competency scores into a site host index.
type Aggregation string

const (
	// AggregateMean averages contributing species.
	AggregateMean Aggregation = "mean"
	// AggregateMax takes the most competent contributing species.
	AggregateMax Aggregation = "max"
)

// Tier is an age threshold and the score reached at it. A negative Age
// disables the tier.
type Tier struct {
	Age   int
	Score float64
}

func (t Tier) enabled() bool { return t.Age >= 0 }

// HostProfile is a species' competency as a step function of its oldest
// cohort's age.
type HostProfile struct {
	Species string
	Low     Tier
	Medium  Tier
	High    Tier
}

// Validate checks scores lie in [0, MaxScore] and enabled tier ages are
// strictly ascending.
func (p HostProfile) Validate() error {
	if p.Species == "" {
		return simerr.Configf("host profile with empty species")
	}
	last := -1
	for _, t := range []Tier{p.Low, p.Medium, p.High} {
		if !(t.Score >= 0 && t.Score <= MaxScore) {
			return simerr.Configf("host profile %q: score %g outside [0,%d]", p.Species, t.Score, MaxScore)
		}
		if !t.enabled() {
			continue
		}
		if t.Age <= last {
			return simerr.Configf("host profile %q: tier ages must be strictly ascending (%d after %d)",
				p.Species, t.Age, last)
		}
		last = t.Age
	}
	return nil
}

// Score returns the competency for a species whose oldest cohort is age.
func (p HostProfile) Score(age int) float64 {
	var s float64
	for _, t := range []Tier{p.Low, p.Medium, p.High} {
		if t.enabled() && age >= t.Age {
			s = t.Score
		}
	}
	return s
}

// HostTable maps species to their host profiles.
type HostTable struct {
	profiles map[string]HostProfile
	species  []string
	mode     Aggregation
}

// NewHostTable validates profiles and the aggregation mode.
func NewHostTable(profiles []HostProfile, mode Aggregation) (*HostTable, error) {
	switch mode {
	case AggregateMean, AggregateMax:
	default:
		return nil, simerr.Configf("unknown host index aggregation %q (expected mean or max)", mode)
	}
	t := &HostTable{profiles: make(map[string]HostProfile, len(profiles)), mode: mode}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.profiles[p.Species]; dup {
			return nil, simerr.Configf("host profile %q listed twice", p.Species)
		}
		t.profiles[p.Species] = p
		t.species = append(t.species, p.Species)
	}
	sort.Strings(t.species)
	return t, nil
}

// Species returns the profiled species in ascending order.
func (t *HostTable) Species() []string { return t.species }

// Profile returns the profile of species.
func (t *HostTable) Profile(species string) (HostProfile, bool) {
	p, ok := t.profiles[species]
	return p, ok
}

// SiteIndex aggregates the competency of every present, profiled species at
// a site. Sites without one score 0.
func (t *HostTable) SiteIndex(cohorts []cohort.Cohort) float64 {
	var sum, best float64
	var n int
	for _, species := range t.species {
		age := cohort.OldestAge(cohorts, species)
		if age < 0 {
			continue
		}
		s := t.profiles[species].Score(age)
		sum += s
		best = max(best, s)
		n++
	}
	if n == 0 {
		return 0
	}
	if t.mode == AggregateMax {
		return best
	}
	return sum / float64(n)
}

// HostRecord is one row of the species host-index table.
type HostRecord struct {
	Species     string  `csv:"species" yaml:"species"`
	LowAge      int     `csv:"lowage" yaml:"lowage"`
	LowScore    float64 `csv:"lowscore" yaml:"lowscore"`
	MediumAge   int     `csv:"mediumage" yaml:"mediumage"`
	MediumScore float64 `csv:"mediumscore" yaml:"mediumscore"`
	HighAge     int     `csv:"highage" yaml:"highage"`
	HighScore   float64 `csv:"highscore" yaml:"highscore"`
}

// Profile converts the record.
func (r HostRecord) Profile() HostProfile {
	return HostProfile{
		Species: r.Species,
		Low:     Tier{Age: r.LowAge, Score: r.LowScore},
		Medium:  Tier{Age: r.MediumAge, Score: r.MediumScore},
		High:    Tier{Age: r.HighAge, Score: r.HighScore},
	}
}

// ReadHostProfiles parses a host-index table.
func ReadHostProfiles(r io.Reader) ([]HostProfile, error) {
	var records []HostRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("parsing host index table: %w", err)
	}
	out := make([]HostProfile, len(records))
	for i, rec := range records {
		out[i] = rec.Profile()
	}
	return out, nil
}

// ReadHostProfilesFile is ReadHostProfiles on a file path.
func ReadHostProfilesFile(path string) ([]HostProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening host index table: %w", err)
	}
	defer f.Close()
	return ReadHostProfiles(f)
}
