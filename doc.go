// Package sketch loads images through a fetch, decode and transform
// pipeline backed by memory and disk caches.
//
// A [Request] names an image by URI and describes the bitmap wanted: target
// size, precision, scale, transformations and per-tier cache policies.
// [Sketch.Execute] returns a decoded [Result] that records where its data
// came from and every change applied after decoding.
//
// # Quick Start
//
//	s, err := sketch.New(sketch.WithCacheDir("/var/cache/sketch", 1))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	res, err := s.Load(ctx, "https://example.com/photo.jpg",
//	    request.WithSize(500, 300),
//	    request.WithPrecision(resize.SameAspectRatio),
//	)
//
// # URIs
//
// Built-in fetchers handle http:// and https://, file:// and absolute paths,
// data: base64 URIs, oci:// registry blobs by digest, and resource:// names
// when [WithResourceFS] is set. Register more with [WithFetcherFactories].
//
// # Caching
//
// Results are looked up in the memory cache first. On a miss, the result
// disk cache may return a stored decoded image, and the download disk cache
// may return bytes fetched earlier from the network. Concurrent requests
// with the same key share a single execution.
package sketch
