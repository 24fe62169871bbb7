package resize

import (
	"fmt"
	"image"
)

// Mapping describes how a source image maps onto the output bitmap.
//
// SrcRect is the region of the source that is drawn; DestRect is where it
// lands in an output of NewWidth x NewHeight.
type Mapping struct {
	SrcRect   image.Rectangle
	DestRect  image.Rectangle
	NewWidth  int
	NewHeight int
}

// String formats the mapping for logs and test failures.
func (m Mapping) String() string {
	return fmt.Sprintf("Mapping(src=%v,dest=%v,new=%dx%d)", m.SrcRect, m.DestRect, m.NewWidth, m.NewHeight)
}

// IsIdentity reports whether the mapping draws the whole source unscaled.
func (m Mapping) IsIdentity(srcWidth, srcHeight int) bool {
	return m.SrcRect == image.Rect(0, 0, srcWidth, srcHeight) &&
		m.NewWidth == srcWidth && m.NewHeight == srcHeight
}

// CalculateMapping computes the crop and output rectangles for resizing a
// srcWidth x srcHeight image to dstWidth x dstHeight.
//
// It returns false when any dimension is non-positive.
func CalculateMapping(srcWidth, srcHeight, dstWidth, dstHeight int, precision Precision, scale Scale) (Mapping, bool) {
	if srcWidth <= 0 || srcHeight <= 0 || dstWidth <= 0 || dstHeight <= 0 {
		return Mapping{}, false
	}

	full := image.Rect(0, 0, srcWidth, srcHeight)

	if precision == LessPixels {
		sampleSize := CalculateSampleSize(srcWidth, srcHeight, dstWidth, dstHeight)
		newWidth := ceilDiv(srcWidth, sampleSize)
		newHeight := ceilDiv(srcHeight, sampleSize)
		return Mapping{
			SrcRect:   full,
			DestRect:  image.Rect(0, 0, newWidth, newHeight),
			NewWidth:  newWidth,
			NewHeight: newHeight,
		}, true
	}

	cropWidth, cropHeight := cropSize(srcWidth, srcHeight, dstWidth, dstHeight)

	var newWidth, newHeight int
	switch precision {
	case Exactly:
		newWidth, newHeight = dstWidth, dstHeight
	default:
		if int64(cropWidth)*int64(cropHeight) > int64(dstWidth)*int64(dstHeight) {
			newWidth, newHeight = dstWidth, dstHeight
		} else {
			newWidth, newHeight = cropWidth, cropHeight
		}
	}

	srcRect := full
	if scale != Fill {
		srcRect = anchorRect(srcWidth, srcHeight, cropWidth, cropHeight, scale)
	}

	return Mapping{
		SrcRect:   srcRect,
		DestRect:  image.Rect(0, 0, newWidth, newHeight),
		NewWidth:  newWidth,
		NewHeight: newHeight,
	}, true
}

// cropSize returns the largest region of the source with the destination's
// aspect ratio.
func cropSize(srcWidth, srcHeight, dstWidth, dstHeight int) (int, int) {
	sw, sh := int64(srcWidth), int64(srcHeight)
	dw, dh := int64(dstWidth), int64(dstHeight)

	var cw, ch int64
	if sw*dh > sh*dw {
		ch = sh
		cw = (sh*dw + dh/2) / dh
	} else {
		cw = sw
		ch = (sw*dh + dw/2) / dw
	}
	return clamp(int(cw), 1, srcWidth), clamp(int(ch), 1, srcHeight)
}

func anchorRect(srcWidth, srcHeight, cropWidth, cropHeight int, scale Scale) image.Rectangle {
	var left, top int
	switch scale {
	case StartCrop:
		left, top = 0, 0
	case EndCrop:
		left, top = srcWidth-cropWidth, srcHeight-cropHeight
	default:
		left, top = (srcWidth-cropWidth)/2, (srcHeight-cropHeight)/2
	}
	return image.Rect(left, top, left+cropWidth, top+cropHeight)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
