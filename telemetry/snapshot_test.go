package telemetry

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestMortalitySnapshotLayout(t *testing.T) {
	s, err := NewMortalitySnapshot(7, 3, 2, []float64{0, 1, 2, 3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	n, err := s.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if int(n) != s.EncodedSize() || buf.Len() != 20+6*8 {
		t.Fatalf("wrote %d bytes (buffer %d), want %d", n, buf.Len(), s.EncodedSize())
	}

	b := buf.Bytes()
	if got := binary.LittleEndian.Uint32(b[0:]); got != 7 {
		t.Errorf("timestep = %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[4:]); got != 3 {
		t.Errorf("width = %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[8:]); got != 2 {
		t.Errorf("height = %d", got)
	}
	if got := binary.LittleEndian.Uint64(b[12:]); got != 6 {
		t.Errorf("count = %d", got)
	}

	back, err := ReadMortalitySnapshot(&buf)
	if err != nil {
		t.Fatal(err)
	}
	// (x=2, y=1) is row-major index 5.
	if back.At(2, 1) != 5 || back.Total() != 15 {
		t.Errorf("decoded %+v", back)
	}
}

func TestMortalitySnapshotErrors(t *testing.T) {
	if _, err := NewMortalitySnapshot(1, 2, 2, []float64{1}); err == nil {
		t.Error("expected size mismatch error")
	}
	if _, err := ReadMortalitySnapshot(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Error("expected short header error")
	}

	var buf bytes.Buffer
	s, _ := NewMortalitySnapshot(1, 2, 2, []float64{1, 2, 3, 4})
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-4]
	if _, err := ReadMortalitySnapshot(bytes.NewReader(truncated)); err == nil {
		t.Error("expected truncated body error")
	}
}

func TestNewMortalitySnapshotCopies(t *testing.T) {
	values := []float64{1, 2}
	s, _ := NewMortalitySnapshot(0, 2, 1, values)
	values[0] = 99
	if s.Values[0] != 1 {
		t.Error("snapshot aliases caller slice")
	}
}
