package sketch

import (
	"github.com/MaTriXy/Sketch/decode"
	"github.com/MaTriXy/Sketch/fetch"
	"github.com/MaTriXy/Sketch/request"
)

// Errors re-exported from request.
var (
	// ErrInvalidURI is returned for a URI no fetcher can interpret.
	ErrInvalidURI = request.ErrInvalidURI

	// ErrDepthLimited is returned when a request's depth forbids the tier it needs.
	ErrDepthLimited = request.ErrDepthLimited
)

// Errors re-exported from fetch.
var (
	// ErrNoFetcher is returned when no fetcher accepts a URI.
	ErrNoFetcher = fetch.ErrNoFetcher

	// ErrTimeout is returned when a download exceeds its timeout.
	ErrTimeout = fetch.ErrTimeout

	// ErrNotFound is returned when the source does not exist.
	ErrNotFound = fetch.ErrNotFound

	// ErrHTTPStatus is returned for a non-2xx HTTP response.
	ErrHTTPStatus = fetch.ErrHTTPStatus

	// ErrTooLarge is returned when a download exceeds its size bound.
	ErrTooLarge = fetch.ErrTooLarge
)

// Errors re-exported from decode.
var (
	// ErrNoDecoder is returned when no decoder accepts the fetched data.
	ErrNoDecoder = decode.ErrNoDecoder

	// ErrUnsupportedFormat is returned for data in an unknown image format.
	ErrUnsupportedFormat = decode.ErrUnsupportedFormat

	// ErrImageTooLarge is returned for an image above the decoder's pixel bound.
	ErrImageTooLarge = decode.ErrImageTooLarge
)

// UriInvalidError reports a malformed or unsupported URI.
type UriInvalidError = request.UriInvalidError

// DepthError reports a request stopped by its depth.
type DepthError = request.DepthError

// FetchError describes a failed fetch.
type FetchError = fetch.Error

// DecodeError describes a failed decode.
type DecodeError = decode.Error
