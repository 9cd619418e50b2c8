package telemetry

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// snapshotHeaderSize is the encoded size of timestep, width, height, count.
const snapshotHeaderSize = 4 + 4 + 4 + 8

// MortalitySnapshot is the per-timestep mortality raster: one value per
// grid cell, row-major with index y*Width+x. Inactive cells hold 0.
type MortalitySnapshot struct {
	Timestep uint32
	Width    uint32
	Height   uint32
	Values   []float64
}

// NewMortalitySnapshot wraps values as a width x height snapshot. The
// values slice is copied.
func NewMortalitySnapshot(timestep, width, height int, values []float64) (MortalitySnapshot, error) {
	if len(values) != width*height {
		return MortalitySnapshot{}, fmt.Errorf("mortality snapshot: %d values for a %dx%d grid", len(values), width, height)
	}
	v := make([]float64, len(values))
	copy(v, values)
	return MortalitySnapshot{
		Timestep: uint32(timestep),
		Width:    uint32(width),
		Height:   uint32(height),
		Values:   v,
	}, nil
}

// At returns the value at (x, y).
func (s MortalitySnapshot) At(x, y int) float64 {
	return s.Values[y*int(s.Width)+x]
}

// Total returns the sum of all values.
func (s MortalitySnapshot) Total() float64 {
	var sum float64
	for _, v := range s.Values {
		sum += v
	}
	return sum
}

// EncodedSize returns the number of bytes WriteTo produces.
func (s MortalitySnapshot) EncodedSize() int {
	return snapshotHeaderSize + 8*len(s.Values)
}

// WriteTo encodes the snapshot little-endian: uint32 timestep, uint32
// width, uint32 height, uint64 count, then count float64 values.
func (s MortalitySnapshot) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var buf [snapshotHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:], s.Timestep)
	binary.LittleEndian.PutUint32(buf[4:], s.Width)
	binary.LittleEndian.PutUint32(buf[8:], s.Height)
	binary.LittleEndian.PutUint64(buf[12:], uint64(len(s.Values)))

	n, err := bw.Write(buf[:])
	written := int64(n)
	if err != nil {
		return written, err
	}
	var word [8]byte
	for _, v := range s.Values {
		binary.LittleEndian.PutUint64(word[:], math.Float64bits(v))
		n, err := bw.Write(word[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// ReadMortalitySnapshot decodes a snapshot written by WriteTo.
func ReadMortalitySnapshot(r io.Reader) (MortalitySnapshot, error) {
	var buf [snapshotHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return MortalitySnapshot{}, fmt.Errorf("reading snapshot header: %w", err)
	}
	s := MortalitySnapshot{
		Timestep: binary.LittleEndian.Uint32(buf[0:]),
		Width:    binary.LittleEndian.Uint32(buf[4:]),
		Height:   binary.LittleEndian.Uint32(buf[8:]),
	}
	count := binary.LittleEndian.Uint64(buf[12:])
	if count != uint64(s.Width)*uint64(s.Height) {
		return MortalitySnapshot{}, fmt.Errorf("snapshot count %d does not match %dx%d grid", count, s.Width, s.Height)
	}

	s.Values = make([]float64, count)
	br := bufio.NewReader(r)
	var word [8]byte
	for i := range s.Values {
		if _, err := io.ReadFull(br, word[:]); err != nil {
			return MortalitySnapshot{}, fmt.Errorf("reading snapshot value %d: %w", i, err)
		}
		s.Values[i] = math.Float64frombits(binary.LittleEndian.Uint64(word[:]))
	}
	return s, nil
}
