package epidemic

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/pthm-cable/blight/cohort"
	"github.com/pthm-cable/blight/simerr"
)

func tanoakProfile() HostProfile {
	return HostProfile{
		Species: "tanoak",
		Low:     Tier{Age: 0, Score: 2},
		Medium:  Tier{Age: 10, Score: 6},
		High:    Tier{Age: 40, Score: 10},
	}
}

func TestHostProfileScore(t *testing.T) {
	p := tanoakProfile()
	tests := []struct {
		age  int
		want float64
	}{
		{0, 2}, {9, 2}, {10, 6}, {39, 6}, {40, 10}, {200, 10},
	}
	for _, tt := range tests {
		if got := p.Score(tt.age); got != tt.want {
			t.Errorf("Score(%d) = %v, want %v", tt.age, got, tt.want)
		}
	}

	p.Low = Tier{Age: -1}
	if got := p.Score(5); got != 0 {
		t.Errorf("disabled low tier: Score(5) = %v, want 0", got)
	}
}

func TestHostProfileValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*HostProfile)
	}{
		{"score above 10", func(p *HostProfile) { p.High.Score = 11 }},
		{"negative score", func(p *HostProfile) { p.Low.Score = -1 }},
		{"ages not ascending", func(p *HostProfile) { p.Medium.Age = 50 }},
		{"equal ages", func(p *HostProfile) { p.High.Age = 10 }},
		{"no species", func(p *HostProfile) { p.Species = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tanoakProfile()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, simerr.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}

	p := tanoakProfile()
	p.Medium = Tier{Age: -1}
	if err := p.Validate(); err != nil {
		t.Errorf("disabled middle tier should validate: %v", err)
	}
}

func TestSiteIndexAggregation(t *testing.T) {
	bay := HostProfile{Species: "bay", Low: Tier{Age: 0, Score: 4}, Medium: Tier{Age: -1}, High: Tier{Age: -1}}
	cohorts := []cohort.Cohort{
		{Species: "tanoak", Age: 5, Biomass: 10},
		{Species: "tanoak", Age: 45, Biomass: 10},
		{Species: "bay", Age: 3, Biomass: 10},
		{Species: "grass", Age: 3, Biomass: 10},
	}

	mean, err := NewHostTable([]HostProfile{tanoakProfile(), bay}, AggregateMean)
	if err != nil {
		t.Fatal(err)
	}
	if got := mean.SiteIndex(cohorts); math.Abs(got-7) > 1e-12 {
		t.Errorf("mean SiteIndex = %v, want (10+4)/2 = 7", got)
	}

	mx, err := NewHostTable([]HostProfile{tanoakProfile(), bay}, AggregateMax)
	if err != nil {
		t.Fatal(err)
	}
	if got := mx.SiteIndex(cohorts); got != 10 {
		t.Errorf("max SiteIndex = %v, want 10", got)
	}
	if got := mx.SiteIndex(nil); got != 0 {
		t.Errorf("empty site index = %v, want 0", got)
	}
}

func TestNewHostTableRejects(t *testing.T) {
	if _, err := NewHostTable(nil, "median"); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("expected configuration error for unknown mode, got %v", err)
	}
	_, err := NewHostTable([]HostProfile{tanoakProfile(), tanoakProfile()}, AggregateMean)
	if !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("expected configuration error for duplicate profile, got %v", err)
	}
}

func TestReadHostProfiles(t *testing.T) {
	input := "species,lowage,lowscore,mediumage,mediumscore,highage,highscore\n" +
		"tanoak,0,2,10,6,40,10\n" +
		"bay,0,4,-1,0,-1,0\n"
	profiles, err := ReadHostProfiles(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(profiles))
	}
	if profiles[0] != tanoakProfile() {
		t.Errorf("tanoak profile = %+v", profiles[0])
	}
	if profiles[1].Score(100) != 4 {
		t.Errorf("bay Score(100) = %v, want 4", profiles[1].Score(100))
	}
}

type fakeClassifier struct{ healthy, infected map[string]bool }

func (f fakeClassifier) IsHealthy(s string) bool  { return f.healthy[s] }
func (f fakeClassifier) IsInfected(s string) bool { return f.infected[s] }

func TestClassify(t *testing.T) {
	sc := fakeClassifier{
		healthy:  map[string]bool{"tanoak": true},
		infected: map[string]bool{"tanoak_inf": true},
	}
	tests := []struct {
		name    string
		cohorts []cohort.Cohort
		want    Status
	}{
		{"empty", nil, StatusIgnored},
		{"other species", []cohort.Cohort{{Species: "grass", Biomass: 5}}, StatusIgnored},
		{"healthy", []cohort.Cohort{{Species: "tanoak", Biomass: 5}, {Species: "grass", Biomass: 5}}, StatusHealthy},
		{"infected", []cohort.Cohort{{Species: "tanoak", Biomass: 5}, {Species: "tanoak_inf", Biomass: 1}}, StatusInfected},
		{"zero biomass ignored", []cohort.Cohort{{Species: "tanoak_inf", Biomass: 0}}, StatusIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.cohorts, sc); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}
