package transform

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/MaTriXy/Sketch/resize"
)

// CircleCrop crops images to a circle whose diameter is the shorter side.
type CircleCrop struct {
	Scale resize.Scale
}

// NewCircleCrop returns a CircleCrop anchored by scale.
func NewCircleCrop(scale resize.Scale) CircleCrop {
	return CircleCrop{Scale: scale}
}

// Key implements Transformation.
func (c CircleCrop) Key() string {
	return fmt.Sprintf("CircleCropTransformation(%s)", c.Scale)
}

// Transform implements Transformation.
func (c CircleCrop) Transform(_ context.Context, img image.Image) (*Result, error) {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	mapping, ok := resize.CalculateMapping(b.Dx(), b.Dy(), side, side, resize.SameAspectRatio, c.Scale)
	if !ok {
		return nil, fmt.Errorf("transform: circle crop of empty image %v", b)
	}

	square := cropAndScale(img, mapping)
	out := image.NewNRGBA(image.Rect(0, 0, mapping.NewWidth, mapping.NewHeight))
	mask := &circleMask{
		cx: float64(mapping.NewWidth) / 2,
		cy: float64(mapping.NewHeight) / 2,
		r:  float64(min(mapping.NewWidth, mapping.NewHeight)) / 2,
		b:  out.Bounds(),
	}
	draw.DrawMask(out, out.Bounds(), square, square.Bounds().Min, mask, image.Point{}, draw.Over)
	return &Result{Image: out, Transformed: CircleCropTransformed(c.Scale)}, nil
}

// CircleCropTransformed is the record tag for a circle crop.
func CircleCropTransformed(scale resize.Scale) string {
	return fmt.Sprintf("CircleCropTransformed(%s)", scale)
}

// RoundedCorners rounds all four corners with the same radius.
type RoundedCorners struct {
	Radius int
}

// NewRoundedCorners returns a RoundedCorners transformation.
func NewRoundedCorners(radius int) RoundedCorners {
	return RoundedCorners{Radius: radius}
}

// Key implements Transformation.
func (r RoundedCorners) Key() string {
	return fmt.Sprintf("RoundedCornersTransformation(%d)", r.Radius)
}

// Transform implements Transformation.
func (r RoundedCorners) Transform(_ context.Context, img image.Image) (*Result, error) {
	if r.Radius <= 0 {
		return nil, nil
	}
	src := imaging.Clone(img)
	out := image.NewNRGBA(src.Bounds())
	mask := &roundedMask{b: src.Bounds(), r: float64(r.Radius)}
	draw.DrawMask(out, out.Bounds(), src, image.Point{}, mask, image.Point{}, draw.Over)
	return &Result{Image: out, Transformed: RoundedCornersTransformed(r.Radius)}, nil
}

// RoundedCornersTransformed is the record tag for rounded corners.
func RoundedCornersTransformed(radius int) string {
	return fmt.Sprintf("RoundedCornersTransformed(%d)", radius)
}

// Mask tints images with a color, keeping their alpha channel.
type Mask struct {
	hex     string
	color   colorful.Color
	opacity float64
}

// NewMask parses a "#rrggbb" color. Opacity is clamped to [0, 1].
func NewMask(hex string, opacity float64) (Mask, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return Mask{}, fmt.Errorf("transform: mask color: %w", err)
	}
	return Mask{hex: c.Hex(), color: c, opacity: math.Max(0, math.Min(1, opacity))}, nil
}

// Key implements Transformation.
func (m Mask) Key() string {
	return fmt.Sprintf("MaskTransformation(%s,%.2f)", m.hex, m.opacity)
}

// Transform implements Transformation.
func (m Mask) Transform(_ context.Context, img image.Image) (*Result, error) {
	if m.opacity == 0 {
		return nil, nil
	}
	out := imaging.Clone(img)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		if out.Pix[i+3] == 0 {
			continue
		}
		px := colorful.Color{
			R: float64(out.Pix[i]) / 255,
			G: float64(out.Pix[i+1]) / 255,
			B: float64(out.Pix[i+2]) / 255,
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = px.BlendRgb(m.color, m.opacity).Clamped().RGB255()
	}
	return &Result{Image: out, Transformed: MaskTransformed(m.hex, m.opacity)}, nil
}

// MaskTransformed is the record tag for a mask.
func MaskTransformed(hex string, opacity float64) string {
	return fmt.Sprintf("MaskTransformed(%s,%.2f)", hex, opacity)
}

func cropAndScale(img image.Image, m resize.Mapping) image.Image {
	b := img.Bounds()
	src := img
	if m.SrcRect != image.Rect(0, 0, b.Dx(), b.Dy()) {
		src = imaging.Crop(img, m.SrcRect.Add(b.Min))
	}
	sb := src.Bounds()
	if sb.Dx() == m.NewWidth && sb.Dy() == m.NewHeight {
		return src
	}
	return imaging.Resize(src, m.NewWidth, m.NewHeight, imaging.Lanczos)
}

type circleMask struct {
	cx, cy, r float64
	b         image.Rectangle
}

func (c *circleMask) ColorModel() color.Model { return color.AlphaModel }
func (c *circleMask) Bounds() image.Rectangle { return c.b }
func (c *circleMask) At(x, y int) color.Color {
	dx := float64(x) + 0.5 - c.cx
	dy := float64(y) + 0.5 - c.cy
	if dx*dx+dy*dy <= c.r*c.r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}

type roundedMask struct {
	b image.Rectangle
	r float64
}

func (m *roundedMask) ColorModel() color.Model { return color.AlphaModel }
func (m *roundedMask) Bounds() image.Rectangle { return m.b }
func (m *roundedMask) At(x, y int) color.Color {
	px := float64(x-m.b.Min.X) + 0.5
	py := float64(y-m.b.Min.Y) + 0.5
	w, h := float64(m.b.Dx()), float64(m.b.Dy())
	r := math.Min(m.r, math.Min(w, h)/2)

	var cx, cy float64
	switch {
	case px < r && py < r:
		cx, cy = r, r
	case px > w-r && py < r:
		cx, cy = w-r, r
	case px < r && py > h-r:
		cx, cy = r, h-r
	case px > w-r && py > h-r:
		cx, cy = w-r, h-r
	default:
		return color.Alpha{A: 255}
	}
	dx, dy := px-cx, py-cy
	if dx*dx+dy*dy <= r*r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}
