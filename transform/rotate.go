package transform

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Rotate rotates images clockwise by Degrees.
type Rotate struct {
	Degrees int
}

// NewRotate returns a clockwise rotation.
func NewRotate(degrees int) Rotate {
	return Rotate{Degrees: degrees}
}

// Key implements Transformation.
func (r Rotate) Key() string {
	return fmt.Sprintf("RotateTransformation(%d)", r.Degrees)
}

// Transform implements Transformation. Rotations by a multiple of 90 degrees
// are lossless; other angles leave the uncovered corners transparent.
func (r Rotate) Transform(_ context.Context, img image.Image) (*Result, error) {
	if r.Degrees%360 == 0 {
		return nil, nil
	}

	var out image.Image
	switch ((r.Degrees % 360) + 360) % 360 {
	case 90:
		out = imaging.Rotate270(img)
	case 180:
		out = imaging.Rotate180(img)
	case 270:
		out = imaging.Rotate90(img)
	default:
		// imaging rotates counter-clockwise.
		out = imaging.Rotate(img, -float64(r.Degrees), color.Transparent)
	}
	return &Result{Image: out, Transformed: RotateTransformed(r.Degrees)}, nil
}

// RotateTransformed is the record tag for a rotation.
func RotateTransformed(degrees int) string {
	return fmt.Sprintf("RotateTransformed(%d)", degrees)
}
