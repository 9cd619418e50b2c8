package cohort

import (
	"errors"
	"strings"
	"testing"

	"github.com/pthm-cable/blight/simerr"
)

func TestAttributesValidate(t *testing.T) {
	tests := []struct {
		name    string
		attrs   Attributes
		wantErr bool
	}{
		{"empty", nil, false},
		{"valid", Attributes{{"stems", 4}, {"leaves", 10}}, false},
		{"empty name", Attributes{{"", 1}}, true},
		{"duplicate", Attributes{{"stems", 1}, {"stems", 2}}, true},
		{"negative", Attributes{{"stems", -1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.attrs.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, simerr.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestAttributesAddPreservesOrder(t *testing.T) {
	var a Attributes
	a.Add("b", 1)
	a.Add("a", 2)
	a.Add("b", 3)
	if len(a) != 2 || a[0].Name != "b" || a[0].Value != 4 || a[1].Name != "a" {
		t.Errorf("unexpected attributes %v", a)
	}
	if a.Sum() != 6 {
		t.Errorf("Sum = %d, want 6", a.Sum())
	}
}

func TestOldestAge(t *testing.T) {
	cs := []Cohort{
		{Species: "oak", Age: 10, Biomass: 5},
		{Species: "oak", Age: 40, Biomass: 0},
		{Species: "oak", Age: 25, Biomass: 3},
		{Species: "bay", Age: 60, Biomass: 3},
	}
	if got := OldestAge(cs, "oak"); got != 25 {
		t.Errorf("OldestAge(oak) = %d, want 25", got)
	}
	if got := OldestAge(cs, "fir"); got != -1 {
		t.Errorf("OldestAge(fir) = %d, want -1", got)
	}
}

func TestMemoryStorePutMergesAndGrows(t *testing.T) {
	m := NewMemoryStore()
	m.Put(3, Cohort{Species: "oak", Age: 1, Biomass: 10})
	m.Put(3, Cohort{Species: "oak", Age: 1, Biomass: 5})
	m.Put(3, Cohort{Species: "oak", Age: 2, Biomass: 1})

	if got := m.Cohorts(3); len(got) != 2 || got[0].Biomass != 15 {
		t.Fatalf("unexpected cohorts after merge: %v", got)
	}

	m.Grow(1)
	got := m.Cohorts(3)
	if len(got) != 2 || got[0].Age != 2 || got[1].Age != 3 {
		t.Errorf("unexpected cohorts after growth: %v", got)
	}

	m.AddCohort(3, "bay")
	if age := OldestAge(m.Cohorts(3), "bay"); age != 0 {
		t.Errorf("new cohort age = %d, want 0", age)
	}
}

func TestMemoryStoreSnapshotIsCopy(t *testing.T) {
	m := NewMemoryStore()
	m.Put(0, Cohort{Species: "oak", Age: 1, Biomass: 10, Attributes: Attributes{{"stems", 2}}})
	snap := m.Snapshot()
	snap[0][0].Biomass = 99
	snap[0][0].Attributes[0].Value = 99
	if c := m.Cohorts(0)[0]; c.Biomass != 10 || c.Attributes[0].Value != 2 {
		t.Errorf("snapshot aliased store state: %v", c)
	}
}

func TestMemoryStoreClone(t *testing.T) {
	m := NewMemoryStore()
	m.NewCohortBiomass = 4
	m.Put(2, Cohort{Species: "oak", Age: 3, Biomass: 10})
	c := m.Clone()
	c.Grow(1)
	c.AddCohort(2, "oak")
	if got := m.Cohorts(2); len(got) != 1 || got[0].Age != 3 {
		t.Errorf("clone aliased original: %v", got)
	}
	if got := c.Cohorts(2); len(got) != 2 || got[1].Biomass != 4 {
		t.Errorf("clone cohorts = %v", got)
	}
}

func TestLoadCSV(t *testing.T) {
	input := "x,y,species,age,biomass\n0,0,oak,10,100\n1,0,bay,5,20\n0,0,oak,10,50\n"
	index := func(x, y int) (int, bool) { return y*2 + x, x < 2 && y < 2 }

	store, err := LoadCSV(strings.NewReader(input), index)
	if err != nil {
		t.Fatal(err)
	}
	if got := store.Cohorts(0); len(got) != 1 || got[0].Biomass != 150 {
		t.Errorf("site 0 cohorts = %v", got)
	}
	if got := store.Sites(); len(got) != 2 {
		t.Errorf("Sites = %v", got)
	}

	_, err = LoadCSV(strings.NewReader("x,y,species,age,biomass\n5,5,oak,1,1\n"), index)
	if !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("expected configuration error for inactive site, got %v", err)
	}
}
