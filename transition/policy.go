package transition

import (
	"github.com/pthm-cable/blight/simerr"
)

// BelowPolicy resolves queries younger than the youngest recorded age.
type BelowPolicy string

const (
	// BelowError requires data starting at age 1.
	BelowError BelowPolicy = "error"
	// BelowIgnore answers "no transition" below the recorded range.
	BelowIgnore BelowPolicy = "ignore"
)

// GapPolicy resolves ages missing inside the recorded range.
type GapPolicy string

const (
	// GapError rejects any missing age.
	GapError GapPolicy = "error"
	// GapAgeThreshold reuses the row of the previous age.
	GapAgeThreshold GapPolicy = "age_threshold"
	// GapLinear interpolates each target's probability between the rows
	// bounding the gap.
	GapLinear GapPolicy = "linear_interpolation"
)

// AbovePolicy resolves queries older than the oldest recorded age.
type AbovePolicy string

const (
	// AboveError treats such a query as unreachable.
	AboveError AbovePolicy = "error"
	// AboveUseOldest repeats the oldest row.
	AboveUseOldest AbovePolicy = "use_oldest"
	// AboveKillAll answers 100% mortality.
	AboveKillAll AbovePolicy = "kill_all"
	// AboveIgnore answers "no transition".
	AboveIgnore AbovePolicy = "ignore"
)

// DefaultTolerance is the probability-sum tolerance used when none is set.
const DefaultTolerance = 1e-6

// Policies are the resolved out-of-range and validation rules of a matrix.
type Policies struct {
	Below      BelowPolicy `yaml:"below_range"`
	Gap        GapPolicy   `yaml:"missing_age"`
	Above      AbovePolicy `yaml:"above_range"`
	Exhaustive bool        `yaml:"exhaustive"`
	Tolerance  float64     `yaml:"tolerance"`
}

// DefaultPolicies are strict: every out-of-range or missing age is an error
// and rows need not be exhaustive.
func DefaultPolicies() Policies {
	return Policies{
		Below:     BelowError,
		Gap:       GapError,
		Above:     AboveError,
		Tolerance: DefaultTolerance,
	}
}

// Validate checks every policy holds a known value.
func (p Policies) Validate() error {
	switch p.Below {
	case BelowError, BelowIgnore:
	default:
		return simerr.Configf("unknown below_range policy %q", p.Below)
	}
	switch p.Gap {
	case GapError, GapAgeThreshold, GapLinear:
	default:
		return simerr.Configf("unknown missing_age policy %q", p.Gap)
	}
	switch p.Above {
	case AboveError, AboveUseOldest, AboveKillAll, AboveIgnore:
	default:
		return simerr.Configf("unknown above_range policy %q", p.Above)
	}
	if !(p.Tolerance >= 0) {
		return simerr.Configf("probability tolerance must be >= 0, got %g", p.Tolerance)
	}
	return nil
}

// Override replaces selected policies. Empty strings and nil pointers
// inherit.
type Override struct {
	Below      BelowPolicy `yaml:"below_range,omitempty"`
	Gap        GapPolicy   `yaml:"missing_age,omitempty"`
	Above      AbovePolicy `yaml:"above_range,omitempty"`
	Exhaustive *bool       `yaml:"exhaustive,omitempty"`
	Tolerance  *float64    `yaml:"tolerance,omitempty"`
}

// With returns p with o applied.
func (p Policies) With(o Override) Policies {
	if o.Below != "" {
		p.Below = o.Below
	}
	if o.Gap != "" {
		p.Gap = o.Gap
	}
	if o.Above != "" {
		p.Above = o.Above
	}
	if o.Exhaustive != nil {
		p.Exhaustive = *o.Exhaustive
	}
	if o.Tolerance != nil {
		p.Tolerance = *o.Tolerance
	}
	return p
}
