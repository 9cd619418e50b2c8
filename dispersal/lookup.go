package dispersal

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/blight/simerr"
)

// Offset is a cell displacement. A canonical offset has DX >= DY >= 0.
type Offset struct {
	DX, DY int
}

// Canonicalize maps an offset onto the octant DX >= DY >= 0. All eight
// mirror images of an offset share one canonical form.
func Canonicalize(dx, dy int) Offset {
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dy > dx {
		dx, dy = dy, dx
	}
	return Offset{DX: dx, DY: dy}
}

// Multiplicity returns how many cells of the full neighborhood share the
// canonical offset o: 1 for the origin, 4 on an axis or the diagonal,
// 8 otherwise.
func Multiplicity(o Offset) int {
	switch {
	case o.DX == 0 && o.DY == 0:
		return 1
	case o.DY == 0 || o.DX == o.DY:
		return 4
	}
	return 8
}

// Neighbor is a full-neighborhood offset with its normalized weight.
type Neighbor struct {
	DX, DY int
	Weight float64
}

// Lookup is an immutable table of normalized kernel weights over the
// canonical octant of a square neighborhood. Weights of the fully expanded
// neighborhood (origin excluded) sum to 1.
type Lookup struct {
	kernel      Kernel
	maxDistance float64
	cellLength  float64
	radius      int

	// weights is a packed lower triangle: offset (dx,dy) lives at
	// dx*(dx+1)/2 + dy.
	weights []float64

	expanded []Neighbor
}

// Build computes the lookup table for kernel over every cell within
// maxDistance, with cells of side cellLength.
func Build(kernel Kernel, maxDistance, cellLength float64) (*Lookup, error) {
	if !(cellLength > 0) {
		return nil, simerr.Configf("cell length must be > 0, got %g", cellLength)
	}
	if !(maxDistance > 0) {
		return nil, simerr.Configf("max dispersal distance must be > 0, got %g", maxDistance)
	}
	if kernel.kind == "" {
		return nil, simerr.Configf("dispersal lookup needs a kernel")
	}

	radius := int(math.Ceil(maxDistance / cellLength))
	l := &Lookup{
		kernel:      kernel,
		maxDistance: maxDistance,
		cellLength:  cellLength,
		radius:      radius,
		weights:     make([]float64, (radius+1)*(radius+2)/2),
	}

	mult := make([]float64, len(l.weights))
	for dx := 0; dx <= radius; dx++ {
		for dy := 0; dy <= dx; dy++ {
			if dx == 0 {
				continue
			}
			d := math.Hypot(float64(dx), float64(dy)) * cellLength
			if d > maxDistance {
				continue
			}
			i := packedIndex(dx, dy)
			l.weights[i] = kernel.Compute(d)
			mult[i] = float64(Multiplicity(Offset{dx, dy}))
		}
	}

	total := floats.Dot(l.weights, mult)
	if !(total > 0) {
		return nil, simerr.Configf("dispersal neighborhood is empty: max distance %g does not reach a neighboring cell of length %g",
			maxDistance, cellLength)
	}
	floats.Scale(1/total, l.weights)

	l.expanded = l.expand()
	return l, nil
}

func packedIndex(dx, dy int) int { return dx*(dx+1)/2 + dy }

// Radius returns the neighborhood radius in cells, ceil(maxDistance/cellLength).
func (l *Lookup) Radius() int { return l.radius }

// MaxDistance returns the dispersal distance in map units.
func (l *Lookup) MaxDistance() float64 { return l.maxDistance }

// CellLength returns the cell side length in map units.
func (l *Lookup) CellLength() float64 { return l.cellLength }

// Kernel returns the kernel the table was built from.
func (l *Lookup) Kernel() Kernel { return l.kernel }

// InRange reports whether (dx, dy) is a non-origin offset within the
// dispersal distance.
func (l *Lookup) InRange(dx, dy int) bool {
	o := Canonicalize(dx, dy)
	if o.DX == 0 || o.DX > l.radius {
		return false
	}
	return math.Hypot(float64(o.DX), float64(o.DY))*l.cellLength <= l.maxDistance
}

// Weight returns the normalized weight for (dx, dy). Offsets with a
// canonical DX beyond Radius are not stored and panic; callers bounds-check
// with InRange or Radius first.
func (l *Lookup) Weight(dx, dy int) float64 {
	o := Canonicalize(dx, dy)
	return l.weights[packedIndex(o.DX, o.DY)]
}

// Each calls fn for every stored canonical offset with a non-zero weight,
// in ascending (DX, DY) order.
func (l *Lookup) Each(fn func(o Offset, weight float64)) {
	for dx := 1; dx <= l.radius; dx++ {
		for dy := 0; dy <= dx; dy++ {
			if w := l.weights[packedIndex(dx, dy)]; w > 0 {
				fn(Offset{dx, dy}, w)
			}
		}
	}
}

// Neighbors returns every offset of the full neighborhood within the
// dispersal distance, origin excluded, with its weight. The slice is shared
// and must not be modified.
func (l *Lookup) Neighbors() []Neighbor { return l.expanded }

func (l *Lookup) expand() []Neighbor {
	var out []Neighbor
	for dy := -l.radius; dy <= l.radius; dy++ {
		for dx := -l.radius; dx <= l.radius; dx++ {
			if !l.InRange(dx, dy) {
				continue
			}
			out = append(out, Neighbor{DX: dx, DY: dy, Weight: l.Weight(dx, dy)})
		}
	}
	return out
}
