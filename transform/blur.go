package transform

import (
	"context"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/blur"
)

// Blur applies a gaussian blur.
type Blur struct {
	Radius float64
}

// NewBlur returns a gaussian Blur with the given radius.
func NewBlur(radius float64) Blur {
	return Blur{Radius: radius}
}

// Key implements Transformation.
func (b Blur) Key() string {
	return fmt.Sprintf("BlurTransformation(%g)", b.Radius)
}

// Transform implements Transformation.
func (b Blur) Transform(_ context.Context, img image.Image) (*Result, error) {
	if b.Radius <= 0 {
		return nil, nil
	}
	return &Result{Image: blur.Gaussian(img, b.Radius), Transformed: BlurTransformed(b.Radius)}, nil
}

// BlurTransformed is the record tag for a blur.
func BlurTransformed(radius float64) string {
	return fmt.Sprintf("BlurTransformed(%g)", radius)
}
