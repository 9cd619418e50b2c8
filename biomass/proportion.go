// Package biomass turns transition rows into exact integer biomass
// transfers between species, and schedules regrowth after mortality.
package biomass

import (
	"math"

	"github.com/pthm-cable/blight/cohort"
	"github.com/pthm-cable/blight/simerr"
	"github.com/pthm-cable/blight/transition"
)

// Matrices resolves a cohort's transition row and its group's healthy
// species. *transition.Registry implements it.
type Matrices interface {
	Distribution(species string, age int) (transition.Distribution, bool, error)
	HealthyOf(species string) (string, bool)
}

// SiteResult is the outcome of proportioning one site.
type SiteResult struct {
	// Cohorts replaces the site's collection. Zero-biomass cohorts are dropped.
	Cohorts []cohort.Cohort
	// Mortality is the biomass sent to death.
	Mortality int
	// Resprout lists the healthy species whose cohorts died, without repeats.
	Resprout []string
}

type accEntry struct {
	biomass int
	attrs   cohort.Attributes
}

// Proportioner applies transition rows to the cohorts of a site. It reuses
// one accumulation map between sites, so a Proportioner must not be shared
// by concurrent callers.
type Proportioner struct {
	matrices Matrices

	acc   map[cohort.Key]*accEntry
	order []cohort.Key
}

// NewProportioner creates a proportioner backed by m.
func NewProportioner(m Matrices) *Proportioner {
	return &Proportioner{
		matrices: m,
		acc:      make(map[cohort.Key]*accEntry),
	}
}

func (p *Proportioner) add(key cohort.Key, biomass int, attrs cohort.Attributes) {
	e, ok := p.acc[key]
	if !ok {
		e = &accEntry{}
		p.acc[key] = e
		p.order = append(p.order, key)
	}
	e.biomass += biomass
	for _, a := range attrs {
		e.attrs.Add(a.Name, a.Value)
	}
}

// reset clears the accumulation map for the next site.
func (p *Proportioner) reset() {
	clear(p.acc)
	p.order = p.order[:0]
}

// Site proportions every cohort at a site and returns the replacement
// collection.
func (p *Proportioner) Site(cohorts []cohort.Cohort) (SiteResult, error) {
	defer p.reset()

	var res SiteResult
	for _, c := range cohorts {
		d, ok, err := p.matrices.Distribution(c.Species, c.Age)
		if err != nil {
			return SiteResult{}, err
		}
		if !ok {
			p.add(c.Key(), c.Biomass, c.Attributes)
			continue
		}
		died, err := p.cohort(c, d, &res)
		if err != nil {
			return SiteResult{}, err
		}
		if died {
			if healthy, ok := p.matrices.HealthyOf(c.Species); ok && !contains(res.Resprout, healthy) {
				res.Resprout = append(res.Resprout, healthy)
			}
		}
	}

	for _, key := range p.order {
		e := p.acc[key]
		if e.biomass == 0 {
			continue
		}
		res.Cohorts = append(res.Cohorts, cohort.Cohort{
			Species:    key.Species,
			Age:        key.Age,
			Biomass:    e.biomass,
			Attributes: e.attrs,
		})
	}
	return res, nil
}

// cohort splits one cohort along d. Each transfer is round(biomass*p),
// clamped so the cumulative transfer never exceeds the original biomass;
// the untransferred remainder stays with the source species.
func (p *Proportioner) cohort(c cohort.Cohort, d transition.Distribution, res *SiteResult) (died bool, err error) {
	if c.Biomass == 1 && hasDeath(d) {
		// A single unit of biomass always dies outright, whatever else
		// the row would do with it.
		res.Mortality++
		return true, nil
	}

	remaining := c.Biomass
	budget := c.Attributes.Clone()

	for _, e := range d {
		transfer := min(int(math.Round(float64(c.Biomass)*e.Probability)), remaining)
		if transfer <= 0 {
			continue
		}

		moved := apportion(c.Attributes, budget, transfer, c.Biomass)
		remaining -= transfer

		if e.Target == transition.Death {
			res.Mortality += transfer
			died = true
			continue
		}
		p.add(cohort.Key{Species: e.Target, Age: c.Age}, transfer, moved)
	}

	for _, a := range budget {
		if a.Value < 0 {
			return false, simerr.Assertf("cohort %s: attribute %q budget underflow (%d)", c, a.Name, a.Value)
		}
	}
	if remaining < 0 {
		return false, simerr.Assertf("cohort %s: transferred more biomass than it holds", c)
	}
	p.add(c.Key(), remaining, budget)
	return died, nil
}

// apportion moves the pro-rata share transfer/total of each original
// attribute out of budget and returns it. Shares are rounded and never
// exceed what is left in the budget.
func apportion(orig, budget cohort.Attributes, transfer, total int) cohort.Attributes {
	if len(budget) == 0 {
		return nil
	}
	moved := make(cohort.Attributes, len(budget))
	frac := float64(transfer) / float64(total)
	for i := range budget {
		share := int(math.Round(float64(orig[i].Value) * frac))
		share = min(share, budget[i].Value)
		budget[i].Value -= share
		moved[i] = cohort.Attr{Name: budget[i].Name, Value: share}
	}
	return moved
}

func hasDeath(d transition.Distribution) bool {
	for _, e := range d {
		if e.Target == transition.Death {
			return true
		}
	}
	return false
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
