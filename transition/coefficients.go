package transition

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/blight/simerr"
)

// CoefficientRecord is one line of a coefficient table: the logit of Target
// for Species at age a is Intercept + Slope*a.
type CoefficientRecord struct {
	Species   string  `csv:"species" yaml:"species"`
	Target    string  `csv:"target" yaml:"target"`
	Intercept float64 `csv:"intercept" yaml:"intercept"`
	Slope     float64 `csv:"slope" yaml:"slope"`
}

// ReadCoefficients parses a coefficient table.
func ReadCoefficients(r io.Reader) ([]CoefficientRecord, error) {
	var records []CoefficientRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("parsing transition coefficients: %w", err)
	}
	return records, nil
}

// ReadCoefficientsFile is ReadCoefficients on a file path.
func ReadCoefficientsFile(path string) ([]CoefficientRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transition coefficients: %w", err)
	}
	defer f.Close()
	return ReadCoefficients(f)
}

// Coefficients is a multinomial-logit model of one species' transitions.
type Coefficients struct {
	Species    string
	Targets    []string
	Intercepts []float64
	Slopes     []float64
}

// GroupCoefficients splits records by species, preserving target order.
func GroupCoefficients(records []CoefficientRecord) map[string]*Coefficients {
	out := make(map[string]*Coefficients)
	for _, rec := range records {
		c, ok := out[rec.Species]
		if !ok {
			c = &Coefficients{Species: rec.Species}
			out[rec.Species] = c
		}
		c.Targets = append(c.Targets, rec.Target)
		c.Intercepts = append(c.Intercepts, rec.Intercept)
		c.Slopes = append(c.Slopes, rec.Slope)
	}
	return out
}

// Evaluate produces one row per age in [minAge, maxAge] by softmax over the
// target logits. When exhaustive is false a zero logit for "no change" joins
// the softmax and its share is left unassigned in the row.
func (c *Coefficients) Evaluate(minAge, maxAge int, exhaustive bool) (map[int]Distribution, error) {
	if len(c.Targets) == 0 {
		return nil, simerr.Configf("species %q: no coefficients", c.Species)
	}
	if len(c.Intercepts) != len(c.Targets) || len(c.Slopes) != len(c.Targets) {
		return nil, simerr.Configf("species %q: coefficient lengths differ", c.Species)
	}
	if minAge > maxAge {
		return nil, simerr.Configf("species %q: coefficient age range %d..%d is empty", c.Species, minAge, maxAge)
	}

	n := len(c.Targets)
	logits := make([]float64, n, n+1)
	rows := make(map[int]Distribution, maxAge-minAge+1)
	for age := minAge; age <= maxAge; age++ {
		logits = logits[:n]
		for i := range c.Targets {
			logits[i] = c.Intercepts[i] + c.Slopes[i]*float64(age)
		}
		all := logits
		if !exhaustive {
			all = append(logits, 0)
		}
		lse := floats.LogSumExp(all)

		d := make(Distribution, n)
		for i, target := range c.Targets {
			d[i] = Entry{Target: target, Probability: math.Exp(logits[i] - lse)}
		}
		rows[age] = d
	}
	return rows, nil
}
