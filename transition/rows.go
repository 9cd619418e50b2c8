package transition

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
)

// RowRecord is one line of a transition table: at Age, Probability of
// Species' biomass goes to Target.
type RowRecord struct {
	Species     string  `csv:"species" yaml:"species"`
	Age         int     `csv:"age" yaml:"age"`
	Target      string  `csv:"target" yaml:"target"`
	Probability float64 `csv:"probability" yaml:"probability"`
}

// ReadRows parses a transition table.
func ReadRows(r io.Reader) ([]RowRecord, error) {
	var records []RowRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("parsing transition rows: %w", err)
	}
	return records, nil
}

// ReadRowsFile is ReadRows on a file path.
func ReadRowsFile(path string) ([]RowRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transition rows: %w", err)
	}
	defer f.Close()
	return ReadRows(f)
}

// GroupRows splits records by species and age. Entry order within a row
// follows record order.
func GroupRows(records []RowRecord) map[string]map[int]Distribution {
	out := make(map[string]map[int]Distribution)
	for _, rec := range records {
		bySpecies, ok := out[rec.Species]
		if !ok {
			bySpecies = make(map[int]Distribution)
			out[rec.Species] = bySpecies
		}
		bySpecies[rec.Age] = append(bySpecies[rec.Age], Entry{Target: rec.Target, Probability: rec.Probability})
	}
	return out
}

// WriteRows writes records as a transition table.
func WriteRows(w io.Writer, records []RowRecord) error {
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("writing transition rows: %w", err)
	}
	return nil
}
