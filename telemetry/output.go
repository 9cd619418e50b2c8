package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// ConfigWriter persists an effective configuration.
type ConfigWriter interface {
	WriteYAML(path string) error
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir          string
	timestepFile *os.File
	perfFile     *os.File

	timestepHeaderWritten bool
	perfHeaderWritten     bool
}

// NewOutputManager creates the output directory and its CSV files.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	f, err := os.Create(filepath.Join(dir, "timesteps.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating timesteps.csv: %w", err)
	}
	om.timestepFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.timestepFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the effective configuration as config.yaml.
func (om *OutputManager) WriteConfig(cfg ConfigWriter) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTimestep appends a row to timesteps.csv.
func (om *OutputManager) WriteTimestep(stats TimestepStats) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.timestepFile, []TimestepStats{stats}, &om.timestepHeaderWritten); err != nil {
		return fmt.Errorf("writing timestep stats: %w", err)
	}
	return nil
}

// WritePerf appends a row to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, timestep int) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.perfFile, []PerfStatsCSV{stats.ToCSV(timestep)}, &om.perfHeaderWritten); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// appendCSV writes the header only on the first call for a file.
func appendCSV(f *os.File, records any, headerWritten *bool) error {
	if *headerWritten {
		return gocsv.MarshalWithoutHeaders(records, f)
	}
	if err := gocsv.Marshal(records, f); err != nil {
		return err
	}
	*headerWritten = true
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*os.File{om.timestepFile, om.perfFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
