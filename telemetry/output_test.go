package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
)

type yamlStub struct{ body string }

func (y yamlStub) WriteYAML(path string) error {
	return os.WriteFile(path, []byte(y.body), 0644)
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("om = %v, err = %v", om, err)
	}
	if err := om.WriteTimestep(TimestepStats{}); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	for ts := 1; ts <= 3; ts++ {
		if err := om.WriteTimestep(TimestepStats{Timestep: ts, Mortality: ts * 10}); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WritePerf(PerfStats{}, 3); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(yamlStub{body: "simulation: {}\n"}); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "timesteps.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(raw), "timestep,"); n != 1 {
		t.Errorf("header written %d times", n)
	}
	var rows []TimestepStats
	if err := gocsv.UnmarshalBytes(raw, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[2].Mortality != 30 {
		t.Errorf("rows = %+v", rows)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Error("config.yaml not written")
	}
	if om.Dir() != dir {
		t.Errorf("Dir = %q", om.Dir())
	}
}
