package resize

import "fmt"

// PrecisionDecider picks a Precision once the image size is known.
type PrecisionDecider interface {
	// Key identifies the decider in request keys.
	Key() string
	Get(imageWidth, imageHeight, resizeWidth, resizeHeight int) Precision
}

// ScaleDecider picks a Scale once the image size is known.
type ScaleDecider interface {
	Key() string
	Get(imageWidth, imageHeight, resizeWidth, resizeHeight int) Scale
}

// FixedPrecision always returns the same Precision.
type FixedPrecision Precision

// Key implements PrecisionDecider.
func (p FixedPrecision) Key() string {
	return fmt.Sprintf("Fixed(%s)", Precision(p))
}

// Get implements PrecisionDecider.
func (p FixedPrecision) Get(_, _, _, _ int) Precision {
	return Precision(p)
}

// FixedScale always returns the same Scale.
type FixedScale Scale

// Key implements ScaleDecider.
func (s FixedScale) Key() string {
	return fmt.Sprintf("Fixed(%s)", Scale(s))
}

// Get implements ScaleDecider.
func (s FixedScale) Get(_, _, _, _ int) Scale {
	return Scale(s)
}

// LongImagePrecision uses LongImage for long images and Other for the rest.
type LongImagePrecision struct {
	LongImage Precision
	Other     Precision
	Decider   LongImageDecider
}

// NewLongImagePrecision crops long images to the target aspect ratio and
// only subsamples everything else.
func NewLongImagePrecision() LongImagePrecision {
	return LongImagePrecision{
		LongImage: SameAspectRatio,
		Other:     LessPixels,
		Decider:   NewLongImageDecider(),
	}
}

// Key implements PrecisionDecider.
func (d LongImagePrecision) Key() string {
	return fmt.Sprintf("LongImage(%s,%s,%s)", d.LongImage, d.Other, d.Decider)
}

// Get implements PrecisionDecider.
func (d LongImagePrecision) Get(imageWidth, imageHeight, resizeWidth, resizeHeight int) Precision {
	if d.Decider.IsLongImage(imageWidth, imageHeight, resizeWidth, resizeHeight) {
		return d.LongImage
	}
	return d.Other
}

// LongImageScale uses LongImage for long images and Other for the rest.
type LongImageScale struct {
	LongImage Scale
	Other     Scale
	Decider   LongImageDecider
}

// NewLongImageScale keeps the start of long images and centers the rest.
func NewLongImageScale() LongImageScale {
	return LongImageScale{
		LongImage: StartCrop,
		Other:     CenterCrop,
		Decider:   NewLongImageDecider(),
	}
}

// Key implements ScaleDecider.
func (d LongImageScale) Key() string {
	return fmt.Sprintf("LongImage(%s,%s,%s)", d.LongImage, d.Other, d.Decider)
}

// Get implements ScaleDecider.
func (d LongImageScale) Get(imageWidth, imageHeight, resizeWidth, resizeHeight int) Scale {
	if d.Decider.IsLongImage(imageWidth, imageHeight, resizeWidth, resizeHeight) {
		return d.LongImage
	}
	return d.Other
}
