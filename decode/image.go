package decode

import (
	"fmt"
	"image"
	"maps"

	"github.com/MaTriXy/Sketch/source"
)

// Image is a decoded bitmap.
type Image struct {
	img image.Image
}

// NewImage wraps img.
func NewImage(img image.Image) *Image { return &Image{img: img} }

// Image returns the underlying bitmap. Callers must not modify it.
func (i *Image) Image() image.Image { return i.img }

func (i *Image) Width() int  { return i.img.Bounds().Dx() }
func (i *Image) Height() int { return i.img.Bounds().Dy() }

// ByteCount is the in-memory cost of the bitmap at 4 bytes per pixel. It is
// the weight used by the memory cache.
func (i *Image) ByteCount() int64 {
	return int64(i.Width()) * int64(i.Height()) * 4
}

func (i *Image) String() string {
	return fmt.Sprintf("Image(%dx%d)", i.Width(), i.Height())
}

// ImageInfo describes the encoded image before any resizing.
type ImageInfo struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	MimeType        string `json:"mimeType"`
	ExifOrientation int    `json:"exifOrientation"`
}

func (i ImageInfo) String() string {
	return fmt.Sprintf("ImageInfo(%dx%d,%s,%d)", i.Width, i.Height, i.MimeType, i.ExifOrientation)
}

// Result is a decoded image with its provenance.
type Result struct {
	Image    *Image
	Info     ImageInfo
	DataFrom source.DataFrom
	// Transformeds records, in order, every change applied after decoding.
	Transformeds []string
	Extras       map[string]string
}

// WithDataFrom returns a copy of r reporting from as its origin.
func (r *Result) WithDataFrom(from source.DataFrom) *Result {
	c := *r
	c.DataFrom = from
	c.Transformeds = append([]string(nil), r.Transformeds...)
	c.Extras = maps.Clone(r.Extras)
	return &c
}

// Weight is the memory cache weight of r.
func (r *Result) Weight() int64 { return r.Image.ByteCount() }

func (r *Result) String() string {
	return fmt.Sprintf("Result(%s,%s,%s,%v)", r.Image, r.Info, r.DataFrom, r.Transformeds)
}

// Tags that record decode-time changes.

// InSampledTransformed records power-of-two subsampling.
func InSampledTransformed(sampleSize int) string {
	return fmt.Sprintf("InSampledTransformed(%d)", sampleSize)
}

// ResizedTransformed records a crop and scale to the target size.
func ResizedTransformed(width, height int, precision, scale fmt.Stringer) string {
	return fmt.Sprintf("ResizedTransformed(%dx%d,%s,%s)", width, height, precision, scale)
}

// ExifOrientationTransformed records an applied EXIF orientation.
func ExifOrientationTransformed(orientation int) string {
	return fmt.Sprintf("ExifOrientationTransformed(%d)", orientation)
}
