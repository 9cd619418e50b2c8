// Package landscape describes the simulation grid and its active sites.
package landscape

import (
	"github.com/pthm-cable/blight/simerr"
)

// Grid is a width×height landscape with a fixed set of active sites.
// Sites are addressed by a row-major linear index i = y*Width + x.
// The grid is read-only after construction.
type Grid struct {
	Width, Height int

	// CellLength is the side length of one cell in map units (meters).
	CellLength float64

	active  []bool
	indices []int
}

// NewGrid creates a grid. activeMask must have Width*Height entries; a nil
// mask marks every site active.
func NewGrid(width, height int, cellLength float64, activeMask []bool) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, simerr.Configf("grid dimensions must be positive, got %dx%d", width, height)
	}
	if cellLength <= 0 {
		return nil, simerr.Configf("cell length must be positive, got %g", cellLength)
	}
	n := width * height
	if activeMask != nil && len(activeMask) != n {
		return nil, simerr.Configf("active mask has %d entries, grid has %d sites", len(activeMask), n)
	}

	g := &Grid{
		Width:      width,
		Height:     height,
		CellLength: cellLength,
		active:     make([]bool, n),
		indices:    make([]int, 0, n),
	}
	for i := 0; i < n; i++ {
		if activeMask == nil || activeMask[i] {
			g.active[i] = true
			g.indices = append(g.indices, i)
		}
	}
	return g, nil
}

// Size returns the total number of sites, active or not.
func (g *Grid) Size() int { return g.Width * g.Height }

// Index converts (x, y) to a linear site index.
func (g *Grid) Index(x, y int) int { return y*g.Width + x }

// XY converts a linear site index back to (x, y).
func (g *Grid) XY(i int) (x, y int) { return i % g.Width, i / g.Width }

// Contains reports whether (x, y) lies inside the grid.
func (g *Grid) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// Active reports whether site i participates in the simulation.
func (g *Grid) Active(i int) bool { return i >= 0 && i < len(g.active) && g.active[i] }

// ActiveAt reports whether (x, y) is inside the grid and active.
func (g *Grid) ActiveAt(x, y int) bool {
	return g.Contains(x, y) && g.active[g.Index(x, y)]
}

// ActiveIndices returns the active site indices in ascending order.
// The returned slice must not be modified.
func (g *Grid) ActiveIndices() []int { return g.indices }

// NumActive returns the number of active sites.
func (g *Grid) NumActive() int { return len(g.indices) }
