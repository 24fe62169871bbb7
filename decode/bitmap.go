package decode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // register GIF
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp" // register BMP
	_ "golang.org/x/image/webp"

	"github.com/MaTriXy/Sketch/fetch"
	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/resize"
	"github.com/MaTriXy/Sketch/source"
)

var bitmapMimeTypes = map[string]bool{
	"":               true, // unknown: let the format sniffer decide
	"image/jpeg":     true,
	"image/jpg":      true,
	"image/png":      true,
	"image/gif":      true,
	"image/webp":     true,
	"image/bmp":      true,
	"image/x-ms-bmp": true,
}

// DefaultMaxPixels bounds the encoded pixel count the bitmap decoder accepts.
// The codecs always decode at full resolution, so subsampling shrinks the
// result but not the peak memory of a decode.
const DefaultMaxPixels = 1 << 26

// BitmapFactory decodes JPEG, PNG, GIF (first frame), WebP and BMP.
//
// The image is oriented per its EXIF data, subsampled by the largest power
// of two that keeps it at least as large as the target, then cropped and
// scaled to the target size chosen by the request's precision and scale.
type BitmapFactory struct {
	maxPixels int64
}

// BitmapOption configures a BitmapFactory.
type BitmapOption func(*BitmapFactory)

// WithMaxPixels rejects images whose encoded width times height exceeds n
// with ErrImageTooLarge. Zero or less disables the bound.
func WithMaxPixels(n int64) BitmapOption {
	return func(f *BitmapFactory) {
		f.maxPixels = n
	}
}

// NewBitmapFactory returns the default decoder factory.
func NewBitmapFactory(opts ...BitmapOption) *BitmapFactory {
	f := &BitmapFactory{maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *BitmapFactory) Create(req *request.Request, fetched *fetch.Result) (Decoder, bool) {
	if !bitmapMimeTypes[fetched.MimeType] {
		return nil, false
	}
	return &bitmapDecoder{req: req, fetched: fetched, maxPixels: f.maxPixels}, true
}

type bitmapDecoder struct {
	req       *request.Request
	fetched   *fetch.Result
	maxPixels int64
}

func (d *bitmapDecoder) Decode(ctx context.Context) (*Result, error) {
	uri := d.req.URI()
	data, err := source.ReadAll(d.fetched.Source)
	if err != nil {
		return nil, &Error{URI: uri, MimeType: d.fetched.MimeType, Err: err}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{URI: uri, MimeType: d.fetched.MimeType, Err: fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)}
	}
	if d.maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > d.maxPixels {
		return nil, &Error{
			URI:      uri,
			MimeType: "image/" + format,
			Err:      fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, d.maxPixels),
		}
	}
	orientation := 1
	if format == "jpeg" {
		orientation = readOrientation(data)
	}
	info := ImageInfo{
		Width:           cfg.Width,
		Height:          cfg.Height,
		MimeType:        "image/" + format,
		ExifOrientation: orientation,
	}
	if orientation >= 5 {
		info.Width, info.Height = info.Height, info.Width
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &Error{URI: uri, MimeType: info.MimeType, Err: err}
	}

	var transformeds []string
	if orientation > 1 {
		transformeds = append(transformeds, ExifOrientationTransformed(orientation))
	}

	img, resized, err := resizeToTarget(ctx, img, d.req)
	if err != nil {
		return nil, err
	}
	transformeds = append(transformeds, resized...)

	return &Result{
		Image:        NewImage(img),
		Info:         info,
		DataFrom:     d.fetched.DataFrom(),
		Transformeds: transformeds,
	}, nil
}

// resizeToTarget applies the request's size, precision and scale to img and
// returns the tags for what it did.
func resizeToTarget(ctx context.Context, img image.Image, req *request.Request) (image.Image, []string, error) {
	size := req.Size()
	if size.IsEmpty() {
		return img, nil, nil
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	precision := req.PrecisionDecider().Get(w, h, size.Width, size.Height)
	scale := req.ScaleDecider().Get(w, h, size.Width, size.Height)
	m, ok := resize.CalculateMapping(w, h, size.Width, size.Height, precision, scale)
	if !ok || m.IsIdentity(w, h) {
		return img, nil, nil
	}

	var tags []string
	if sample := resize.SampleSizeForMapping(m); sample > 1 {
		sampled := resize.SampledSize(w, h, sample)
		img = imaging.Resize(img, sampled.Width, sampled.Height, imaging.Box)
		tags = append(tags, InSampledTransformed(sample))
		m.SrcRect = scaleRect(m.SrcRect, w, h, sampled.Width, sampled.Height)
		w, h = sampled.Width, sampled.Height
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	changed := false
	if m.SrcRect != image.Rect(0, 0, w, h) {
		img = imaging.Crop(img, m.SrcRect.Add(img.Bounds().Min))
		changed = true
	}
	if img.Bounds().Dx() != m.NewWidth || img.Bounds().Dy() != m.NewHeight {
		img = imaging.Resize(img, m.NewWidth, m.NewHeight, imaging.Lanczos)
		changed = true
	}
	if changed {
		tags = append(tags, ResizedTransformed(m.NewWidth, m.NewHeight, precision, scale))
	}
	return img, tags, nil
}

// scaleRect maps r from a w x h image onto a sw x sh image.
func scaleRect(r image.Rectangle, w, h, sw, sh int) image.Rectangle {
	sx := func(x int) int { return min(sw, x*sw/w) }
	sy := func(y int) int { return min(sh, y*sh/h) }
	out := image.Rect(sx(r.Min.X), sy(r.Min.Y), sx(r.Max.X), sy(r.Max.Y))
	if out.Dx() == 0 {
		out.Max.X = min(sw, out.Min.X+1)
	}
	if out.Dy() == 0 {
		out.Max.Y = min(sh, out.Min.Y+1)
	}
	return out
}
