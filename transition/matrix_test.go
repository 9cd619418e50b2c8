package transition

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/blight/simerr"
)

func policies(below BelowPolicy, gap GapPolicy, above AbovePolicy) Policies {
	p := DefaultPolicies()
	p.Below, p.Gap, p.Above = below, gap, above
	return p
}

func TestDistributionInRange(t *testing.T) {
	rows := map[int]Distribution{
		1: {{"oak_inf", 0.2}},
		2: {{"oak_inf", 0.4}, {Death, 0.1}},
	}
	m, err := NewMatrix("oak", "oak", rows, DefaultPolicies())
	if err != nil {
		t.Fatal(err)
	}
	d, ok, err := m.Distribution(2)
	if err != nil || !ok {
		t.Fatalf("Distribution(2) = %v, %v, %v", d, ok, err)
	}
	if len(d) != 2 || d[0].Target != "oak_inf" || d[1].Target != Death {
		t.Errorf("row order not preserved: %v", d)
	}
	if m.Healthy() != "oak" || m.Species() != "oak" {
		t.Error("accessors returned wrong species")
	}
}

func TestBelowPolicy(t *testing.T) {
	rows := map[int]Distribution{5: {{Death, 0.5}}}

	_, err := NewMatrix("oak", "oak", rows, policies(BelowError, GapError, AboveError))
	if !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("expected configuration error when rows start after age 1, got %v", err)
	}

	m, err := NewMatrix("oak", "oak", rows, policies(BelowIgnore, GapError, AboveError))
	if err != nil {
		t.Fatal(err)
	}
	d, ok, err := m.Distribution(3)
	if err != nil || ok || d != nil {
		t.Errorf("below-range ignore = %v, %v, %v; want no transition", d, ok, err)
	}
}

func TestBelowErrorQueryIsLogicError(t *testing.T) {
	m, err := NewMatrix("oak", "oak", map[int]Distribution{1: {{Death, 0.5}}}, DefaultPolicies())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Distribution(0); !errors.Is(err, simerr.ErrLogic) {
		t.Errorf("expected logic error, got %v", err)
	}
}

func TestAbovePolicy(t *testing.T) {
	rows := map[int]Distribution{
		1: {{Death, 0.1}},
		2: {{Death, 0.3}},
	}
	tests := []struct {
		policy  AbovePolicy
		wantOK  bool
		want    float64
		wantErr error
	}{
		{AboveUseOldest, true, 0.3, nil},
		{AboveKillAll, true, 1.0, nil},
		{AboveIgnore, false, 0, nil},
		{AboveError, false, 0, simerr.ErrLogic},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			m, err := NewMatrix("oak", "oak", rows, policies(BelowError, GapError, tt.policy))
			if err != nil {
				t.Fatal(err)
			}
			d, ok, err := m.Distribution(50)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || ok != tt.wantOK {
				t.Fatalf("Distribution(50) ok=%v err=%v", ok, err)
			}
			if ok && (d[0].Target != Death || d[0].Probability != tt.want) {
				t.Errorf("Distribution(50) = %v, want DEAD %v", d, tt.want)
			}
		})
	}
}

func TestGapError(t *testing.T) {
	rows := map[int]Distribution{1: {{Death, 0.1}}, 3: {{Death, 0.3}}}
	_, err := NewMatrix("oak", "oak", rows, DefaultPolicies())
	if !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestGapAgeThreshold(t *testing.T) {
	rows := map[int]Distribution{
		1: {{Death, 0.1}},
		4: {{Death, 0.4}},
	}
	m, err := NewMatrix("oak", "oak", rows, policies(BelowError, GapAgeThreshold, AboveError))
	if err != nil {
		t.Fatal(err)
	}
	for age, want := range map[int]float64{1: 0.1, 2: 0.1, 3: 0.1, 4: 0.4} {
		d, _, err := m.Distribution(age)
		if err != nil {
			t.Fatal(err)
		}
		if d[0].Probability != want {
			t.Errorf("age %d: got %v, want %v", age, d[0].Probability, want)
		}
	}
	if !m.Filled(2) || !m.Filled(3) || m.Filled(4) {
		t.Error("Filled does not match synthesized ages")
	}
}

func TestGapLinear(t *testing.T) {
	rows := map[int]Distribution{
		1: {{"oak_inf", 0.0}, {Death, 0.4}},
		5: {{"oak_inf", 0.8}, {Death, 0.0}},
		6: {{"oak_inf", 0.5}},
	}
	m, err := NewMatrix("oak", "oak", rows, policies(BelowError, GapLinear, AboveError))
	if err != nil {
		t.Fatal(err)
	}
	d, _, err := m.Distribution(2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d[0].Probability-0.2) > 1e-12 || math.Abs(d[1].Probability-0.3) > 1e-12 {
		t.Errorf("age 2 = %v, want [0.2 0.3]", d)
	}
	d, _, _ = m.Distribution(4)
	if math.Abs(d[0].Probability-0.6) > 1e-12 || math.Abs(d[1].Probability-0.1) > 1e-12 {
		t.Errorf("age 4 = %v, want [0.6 0.1]", d)
	}
}

func TestGapLinearMismatchedTargets(t *testing.T) {
	tests := []struct {
		name string
		rows map[int]Distribution
	}{
		{"count", map[int]Distribution{
			1: {{"oak_inf", 0.1}, {Death, 0.1}},
			3: {{"oak_inf", 0.3}},
		}},
		{"order", map[int]Distribution{
			1: {{"oak_inf", 0.1}, {Death, 0.1}},
			3: {{Death, 0.1}, {"oak_inf", 0.3}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatrix("oak", "oak", tt.rows, policies(BelowError, GapLinear, AboveError))
			if !errors.Is(err, simerr.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestRowSumValidation(t *testing.T) {
	exhaustive := DefaultPolicies()
	exhaustive.Exhaustive = true
	exhaustive.Tolerance = 1e-3

	loose := DefaultPolicies()
	loose.Tolerance = 1e-3

	tests := []struct {
		name    string
		p       Policies
		row     Distribution
		wantErr bool
	}{
		{"exhaustive exact", exhaustive, Distribution{{"a", 0.6}, {Death, 0.4}}, false},
		{"exhaustive within tol", exhaustive, Distribution{{"a", 0.6}, {Death, 0.4005}}, false},
		{"exhaustive short", exhaustive, Distribution{{"a", 0.6}}, true},
		{"exhaustive over", exhaustive, Distribution{{"a", 0.6}, {Death, 0.41}}, true},
		{"loose short", loose, Distribution{{"a", 0.3}}, false},
		{"loose within tol", loose, Distribution{{"a", 0.6}, {Death, 0.4005}}, false},
		{"loose over", loose, Distribution{{"a", 0.6}, {Death, 0.41}}, true},
		{"probability > 1", loose, Distribution{{"a", 1.2}}, true},
		{"negative probability", loose, Distribution{{"a", -0.1}}, true},
		{"duplicate target", loose, Distribution{{"a", 0.1}, {"a", 0.1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatrix("oak", "oak", map[int]Distribution{1: tt.row}, tt.p)
			if tt.wantErr {
				if !errors.Is(err, simerr.ErrConfiguration) {
					t.Errorf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			for _, row := range m.Rows() {
				sum := row.Distribution.Sum()
				if tt.p.Exhaustive && math.Abs(sum-1) > tt.p.Tolerance {
					t.Errorf("exhaustive row sums to %v", sum)
				}
				if !tt.p.Exhaustive && sum > 1+tt.p.Tolerance {
					t.Errorf("row sums to %v", sum)
				}
			}
		})
	}
}

func TestRowsAreCopies(t *testing.T) {
	m, err := NewMatrix("oak", "oak", map[int]Distribution{1: {{Death, 0.5}}}, DefaultPolicies())
	if err != nil {
		t.Fatal(err)
	}
	rows := m.Rows()
	rows[0].Distribution[0].Probability = 0.9
	d, _, _ := m.Distribution(1)
	if d[0].Probability != 0.5 {
		t.Error("Rows exposed internal state")
	}
}

func TestPoliciesWith(t *testing.T) {
	yes := true
	tol := 0.01
	p := DefaultPolicies().With(Override{Gap: GapLinear, Exhaustive: &yes, Tolerance: &tol})
	if p.Gap != GapLinear || !p.Exhaustive || p.Tolerance != 0.01 || p.Below != BelowError {
		t.Errorf("unexpected merged policies %+v", p)
	}
	if err := (Policies{Below: "sometimes", Gap: GapError, Above: AboveError}).Validate(); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
