package biomass

import (
	"math/rand"
	"sort"

	"github.com/pthm-cable/blight/simerr"
)

const (
	// DefaultResproutLongevity is how many timesteps a resprout timer lives.
	DefaultResproutLongevity = 5
	// DefaultResproutProbability is the per-timestep chance a live timer
	// spawns a new cohort.
	DefaultResproutProbability = 0.15
)

type timerKey struct {
	site    int
	species string
}

// Timers tracks resprout timers per (site, healthy species).
type Timers struct {
	longevity   int
	probability float64
	remaining   map[timerKey]int
}

// NewTimers creates an empty timer set.
func NewTimers(longevity int, probability float64) (*Timers, error) {
	if longevity <= 0 {
		return nil, simerr.Configf("resprout longevity must be > 0, got %d", longevity)
	}
	if !(probability >= 0 && probability <= 1) {
		return nil, simerr.Configf("resprout probability must be in [0,1], got %g", probability)
	}
	return &Timers{
		longevity:   longevity,
		probability: probability,
		remaining:   make(map[timerKey]int),
	}, nil
}

// Schedule starts or refreshes the timer of species at site.
func (t *Timers) Schedule(site int, species string) {
	t.remaining[timerKey{site, species}] = t.longevity
}

// Remaining returns the timesteps left on a timer, 0 if none is live.
func (t *Timers) Remaining(site int, species string) int {
	return t.remaining[timerKey{site, species}]
}

// Len returns the number of live timers.
func (t *Timers) Len() int { return len(t.remaining) }

// Tick gives every live timer one independent chance to call spawn, then
// decrements it and discards it at zero. Timers are visited in (site,
// species) order so results are reproducible for a given rng.
func (t *Timers) Tick(rng *rand.Rand, spawn func(site int, species string)) {
	keys := make([]timerKey, 0, len(t.remaining))
	for k := range t.remaining {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].site != keys[j].site {
			return keys[i].site < keys[j].site
		}
		return keys[i].species < keys[j].species
	})

	for _, k := range keys {
		if rng.Float64() < t.probability {
			spawn(k.site, k.species)
		}
		t.remaining[k]--
		if t.remaining[k] <= 0 {
			delete(t.remaining, k)
		}
	}
}
