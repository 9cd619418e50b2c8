package landscape

import (
	"fmt"
	"image"
	_ "image/png"
	"io"
	"os"

	"github.com/pthm-cable/blight/simerr"
)

// InfectedCode is the raster value marking an initially infected site.
const InfectedCode = 1

// ReadMask decodes a single-band raster and returns a boolean grid where
// sites carrying InfectedCode on an active cell are true. The raster must
// match the grid dimensions.
func ReadMask(r io.Reader, g *Grid) ([]bool, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding infection mask: %w", err)
	}
	return MaskFromImage(img, g)
}

// ReadMaskFile is ReadMask on a file path.
func ReadMaskFile(path string, g *Grid) ([]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening infection mask: %w", err)
	}
	defer f.Close()
	return ReadMask(f, g)
}

// MaskFromImage converts a decoded raster into an infection mask. Raw
// pixel values are compared against InfectedCode: the gray level for 8
// and 16-bit gray rasters and the palette index for paletted ones. Any
// other (multi-band) image is rejected.
func MaskFromImage(img image.Image, g *Grid) ([]bool, error) {
	b := img.Bounds()
	if b.Dx() != g.Width || b.Dy() != g.Height {
		return nil, simerr.Configf("infection mask is %dx%d, grid is %dx%d",
			b.Dx(), b.Dy(), g.Width, g.Height)
	}

	var value func(x, y int) int
	switch m := img.(type) {
	case *image.Gray:
		value = func(x, y int) int { return int(m.GrayAt(x, y).Y) }
	case *image.Gray16:
		value = func(x, y int) int { return int(m.Gray16At(x, y).Y) }
	case *image.Paletted:
		value = func(x, y int) int { return int(m.ColorIndexAt(x, y)) }
	default:
		return nil, simerr.Configf("infection mask must be a single-band raster, got %T", img)
	}

	mask := make([]bool, g.Size())
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			i := g.Index(x, y)
			if !g.active[i] {
				continue
			}
			mask[i] = value(b.Min.X+x, b.Min.Y+y) == InfectedCode
		}
	}
	return mask, nil
}
