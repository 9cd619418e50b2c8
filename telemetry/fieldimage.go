package telemetry

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
)

// FieldImage renders a diagnostic field as an 8-bit grayscale image scaled
// to the field's maximum. Non-finite and negative values render black.
func FieldImage(width, height int, values []float64) (*image.Gray, error) {
	if len(values) != width*height {
		return nil, fmt.Errorf("field image: %d values for a %dx%d grid", len(values), width, height)
	}
	var peak float64
	for _, v := range values {
		if v > peak && !math.IsInf(v, 1) {
			peak = v
		}
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	if peak == 0 {
		return img, nil
	}
	for i, v := range values {
		if !(v > 0) || math.IsInf(v, 1) {
			continue
		}
		img.SetGray(i%width, i/width, color.Gray{Y: uint8(math.Round(math.Min(v/peak, 1) * 255))})
	}
	return img, nil
}

// WriteFieldPNG encodes a field as a grayscale PNG.
func WriteFieldPNG(w io.Writer, width, height int, values []float64) error {
	img, err := FieldImage(width, height, values)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
