package main

import (
	"github.com/pthm-cable/blight/config"
	"github.com/pthm-cable/blight/dispersal"
)

// ParamSpec defines a single calibrated parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Starting value
}

// ParamVector holds the calibrated parameters: the kernel's primary
// coefficient and the progression rate ρ.
type ParamVector struct {
	Specs  []ParamSpec
	kernel dispersal.Kind
}

// NewParamVector builds the parameter set for the base config's kernel. The
// coefficient searches one decade either side of its configured value.
func NewParamVector(cfg *config.Config) *ParamVector {
	pv := &ParamVector{kernel: cfg.Dispersal.Kernel}
	p := cfg.Dispersal.Params

	var coef ParamSpec
	switch pv.kernel {
	case dispersal.AnchoredPowerLaw:
		coef = decade("coefficient", "dispersal.coefficient", p.Coefficient)
	case dispersal.TwoPointPowerLaw:
		// p2 must stay at or below p1 for the curve to decay.
		coef = ParamSpec{Name: "p2", Path: "dispersal.p2", Min: p.P1 * 1e-3, Max: p.P1, Default: p.P2}
	default:
		coef = decade("alpha", "dispersal.alpha", p.Alpha)
	}

	rho := cfg.Epidemic.ProgressionRate
	pv.Specs = []ParamSpec{
		coef,
		{Name: "progression_rate", Path: "epidemic.progression_rate", Min: 0, Max: 1, Default: min(rho, 1)},
	}
	return pv
}

func decade(name, path string, v float64) ParamSpec {
	if v <= 0 {
		return ParamSpec{Name: name, Path: path, Min: 1e-4, Max: 1, Default: 0.01}
	}
	return ParamSpec{Name: name, Path: path, Min: v / 10, Max: v * 10, Default: v}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the starting values.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = max(spec.Min, min(v[i], spec.Max))
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into cfg.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	switch pv.kernel {
	case dispersal.AnchoredPowerLaw:
		cfg.Dispersal.Coefficient = clamped[0]
	case dispersal.TwoPointPowerLaw:
		cfg.Dispersal.P2 = clamped[0]
	default:
		cfg.Dispersal.Alpha = clamped[0]
	}
	cfg.Epidemic.ProgressionRate = clamped[1]
}

// ExtractFromConfig reads the current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	coef := cfg.Dispersal.Alpha
	switch pv.kernel {
	case dispersal.AnchoredPowerLaw:
		coef = cfg.Dispersal.Coefficient
	case dispersal.TwoPointPowerLaw:
		coef = cfg.Dispersal.P2
	}
	return []float64{coef, cfg.Epidemic.ProgressionRate}
}
