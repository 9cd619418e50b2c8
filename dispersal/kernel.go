// Package dispersal provides distance-decay kernels and the normalized,
// symmetry-compressed neighborhood lookup table built from them.
package dispersal

import (
	"fmt"
	"math"

	"github.com/pthm-cable/blight/simerr"
)

// Kind selects a kernel family.
type Kind string

const (
	// NegativeExponential is exp(-alpha*d).
	NegativeExponential Kind = "negative_exponential"
	// PowerLaw is d^-alpha.
	PowerLaw Kind = "power_law"
	// AnchoredPowerLaw is 1 up to MinDistance, then (MinDistance/d)^Coefficient.
	AnchoredPowerLaw Kind = "anchored_power_law"
	// TwoPointPowerLaw is A*d^-K passing through (D1,P1) and (D2,P2).
	TwoPointPowerLaw Kind = "two_point_power_law"
)

// Kinds lists every supported kernel family.
var Kinds = []Kind{NegativeExponential, PowerLaw, AnchoredPowerLaw, TwoPointPowerLaw}

// Params carries the numeric parameters of every kernel family. Only the
// fields of the selected Kind are read.
type Params struct {
	Alpha       float64 `yaml:"alpha"`
	MinDistance float64 `yaml:"min_distance"`
	Coefficient float64 `yaml:"coefficient"`
	D1          float64 `yaml:"d1"`
	P1          float64 `yaml:"p1"`
	D2          float64 `yaml:"d2"`
	P2          float64 `yaml:"p2"`
}

// Kernel is a validated distance→weight function. It is a plain value; the
// zero Kernel is invalid.
type Kernel struct {
	kind Kind

	// exponent is alpha, Coefficient or K depending on kind.
	exponent float64
	// scale is MinDistance for the anchored form and A for the two-point form.
	scale float64
}

// NewKernel validates params for kind and returns the kernel.
func NewKernel(kind Kind, p Params) (Kernel, error) {
	switch kind {
	case NegativeExponential, PowerLaw:
		if !(p.Alpha > 0) {
			return Kernel{}, simerr.Configf("%s kernel: alpha must be > 0, got %g", kind, p.Alpha)
		}
		return Kernel{kind: kind, exponent: p.Alpha}, nil

	case AnchoredPowerLaw:
		if !(p.MinDistance > 0) {
			return Kernel{}, simerr.Configf("%s kernel: min_distance must be > 0, got %g", kind, p.MinDistance)
		}
		if !(p.Coefficient > 0) {
			return Kernel{}, simerr.Configf("%s kernel: coefficient must be > 0, got %g", kind, p.Coefficient)
		}
		return Kernel{kind: kind, exponent: p.Coefficient, scale: p.MinDistance}, nil

	case TwoPointPowerLaw:
		switch {
		case !(p.D1 > 0):
			return Kernel{}, simerr.Configf("%s kernel: d1 must be > 0, got %g", kind, p.D1)
		case !(p.D2 > p.D1):
			return Kernel{}, simerr.Configf("%s kernel: d2 (%g) must exceed d1 (%g)", kind, p.D2, p.D1)
		case !(p.P1 > 0) || !(p.P2 > 0):
			return Kernel{}, simerr.Configf("%s kernel: p1 and p2 must be > 0, got %g, %g", kind, p.P1, p.P2)
		case p.P2 > p.P1:
			return Kernel{}, simerr.Configf("%s kernel: p2 (%g) must not exceed p1 (%g)", kind, p.P2, p.P1)
		}
		k := math.Log(p.P1/p.P2) / math.Log(p.D2/p.D1)
		a := p.P1 * math.Pow(p.D1, k)
		return Kernel{kind: kind, exponent: k, scale: a}, nil
	}
	return Kernel{}, simerr.Configf("unknown dispersal kernel %q (expected one of %v)", kind, Kinds)
}

// Kind returns the kernel family.
func (k Kernel) Kind() Kind { return k.kind }

// Exponent returns the decay exponent (alpha, coefficient or solved K).
func (k Kernel) Exponent() float64 { return k.exponent }

// Scale returns MinDistance for the anchored form, A for the two-point form
// and 0 otherwise.
func (k Kernel) Scale() float64 { return k.scale }

// Compute returns the weight at distance d. Power-law weights saturate at 1
// close to the source.
func (k Kernel) Compute(d float64) float64 {
	switch k.kind {
	case NegativeExponential:
		return math.Exp(-k.exponent * d)
	case PowerLaw:
		return saturate(math.Pow(d, -k.exponent))
	case AnchoredPowerLaw:
		if d <= k.scale {
			return 1
		}
		return math.Pow(k.scale/d, k.exponent)
	case TwoPointPowerLaw:
		return saturate(k.scale * math.Pow(d, -k.exponent))
	}
	panic(fmt.Sprintf("dispersal: Compute on invalid kernel %q", k.kind))
}

func (k Kernel) String() string {
	switch k.kind {
	case AnchoredPowerLaw:
		return fmt.Sprintf("%s(min=%g, c=%g)", k.kind, k.scale, k.exponent)
	case TwoPointPowerLaw:
		return fmt.Sprintf("%s(A=%g, K=%g)", k.kind, k.scale, k.exponent)
	}
	return fmt.Sprintf("%s(alpha=%g)", k.kind, k.exponent)
}

func saturate(w float64) float64 {
	if w > 1 || math.IsInf(w, 1) {
		return 1
	}
	return w
}
