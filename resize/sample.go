package resize

// CalculateSampleSize returns the smallest power-of-two downscale factor
// whose sampled pixel count does not exceed dstWidth*dstHeight.
//
// Sampled dimensions round up, matching how decoders subsample partial
// blocks at the right and bottom edges.
func CalculateSampleSize(srcWidth, srcHeight, dstWidth, dstHeight int) int {
	if srcWidth <= 0 || srcHeight <= 0 || dstWidth <= 0 || dstHeight <= 0 {
		return 1
	}
	target := int64(dstWidth) * int64(dstHeight)
	sampleSize := 1
	for {
		w := ceilDiv(srcWidth, sampleSize)
		h := ceilDiv(srcHeight, sampleSize)
		if int64(w)*int64(h) <= target || (w == 1 && h == 1) {
			return sampleSize
		}
		sampleSize *= 2
	}
}

// SampleSizeForMapping returns the largest power-of-two downscale factor that
// keeps the mapped source region at least as large as the output.
//
// Decoders subsample by this factor first and then scale the remainder, so
// no detail below the output resolution is ever decoded into memory.
func SampleSizeForMapping(m Mapping) int {
	cw, ch := m.SrcRect.Dx(), m.SrcRect.Dy()
	if cw <= 0 || ch <= 0 || m.NewWidth <= 0 || m.NewHeight <= 0 {
		return 1
	}
	sampleSize := 1
	for cw/(sampleSize*2) >= m.NewWidth && ch/(sampleSize*2) >= m.NewHeight {
		sampleSize *= 2
	}
	return sampleSize
}

// SampledSize returns the dimensions of an image subsampled by sampleSize.
func SampledSize(width, height, sampleSize int) Size {
	if sampleSize <= 1 {
		return Size{Width: width, Height: height}
	}
	return Size{Width: ceilDiv(width, sampleSize), Height: ceilDiv(height, sampleSize)}
}
