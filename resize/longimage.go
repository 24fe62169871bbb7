package resize

import (
	"fmt"
	"math"
)

// DefaultMinAspectRatioDifference is the factor by which image and target
// aspect ratios must differ for an image to count as long.
const DefaultMinAspectRatioDifference = 3.0

// LongImageDecider decides whether an image is much longer (or wider) than
// the area it is resized into.
type LongImageDecider struct {
	MinAspectRatioDifference float64
}

// NewLongImageDecider returns a decider using [DefaultMinAspectRatioDifference].
func NewLongImageDecider() LongImageDecider {
	return LongImageDecider{MinAspectRatioDifference: DefaultMinAspectRatioDifference}
}

// IsLongImage compares aspect ratios rounded to one decimal place.
func (d LongImageDecider) IsLongImage(imageWidth, imageHeight, resizeWidth, resizeHeight int) bool {
	if imageWidth <= 0 || imageHeight <= 0 || resizeWidth <= 0 || resizeHeight <= 0 {
		return false
	}
	diff := d.MinAspectRatioDifference
	if diff <= 0 {
		diff = DefaultMinAspectRatioDifference
	}
	imageRatio := round1(float64(imageWidth) / float64(imageHeight))
	resizeRatio := round1(float64(resizeWidth) / float64(resizeHeight))
	maxRatio := math.Max(imageRatio, resizeRatio)
	minRatio := math.Min(imageRatio, resizeRatio)
	return maxRatio >= minRatio*diff
}

// String returns a stable representation used in request keys.
func (d LongImageDecider) String() string {
	diff := d.MinAspectRatioDifference
	if diff <= 0 {
		diff = DefaultMinAspectRatioDifference
	}
	return fmt.Sprintf("LongImageDecider(%.1f)", diff)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
