package epidemic

import (
	"github.com/pthm-cable/blight/cohort"
)

// Status is a site's observed infection status.
type Status uint8

const (
	// StatusIgnored sites hold no species of any group.
	StatusIgnored Status = iota
	// StatusHealthy sites hold healthy group species only.
	StatusHealthy
	// StatusInfected sites hold at least one infected pseudo-species.
	StatusInfected
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusInfected:
		return "infected"
	}
	return "ignored"
}

// SpeciesClassifier tells healthy group species from infected
// pseudo-species.
type SpeciesClassifier interface {
	IsHealthy(species string) bool
	IsInfected(species string) bool
}

// Classify derives a site's status from its cohorts. Empty cohorts are
// skipped.
func Classify(cohorts []cohort.Cohort, sc SpeciesClassifier) Status {
	status := StatusIgnored
	for _, c := range cohorts {
		if c.Biomass <= 0 {
			continue
		}
		if sc.IsInfected(c.Species) {
			return StatusInfected
		}
		if sc.IsHealthy(c.Species) {
			status = StatusHealthy
		}
	}
	return status
}
