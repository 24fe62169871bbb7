package request

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURI is returned for a URI no fetcher can interpret.
	ErrInvalidURI = errors.New("request: invalid uri")

	// ErrDepthLimited is returned when a request's Depth forbids the tier
	// needed to satisfy it.
	ErrDepthLimited = errors.New("request: depth limited")
)

// UriInvalidError reports a malformed or unsupported URI.
type UriInvalidError struct {
	URI    string
	Reason string
}

func (e *UriInvalidError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("request: invalid uri %q", e.URI)
	}
	return fmt.Sprintf("request: invalid uri %q: %s", e.URI, e.Reason)
}

func (e *UriInvalidError) Unwrap() error { return ErrInvalidURI }

// DepthError reports a request stopped by its Depth.
type DepthError struct {
	Key   string
	Depth Depth
	// Tier is the tier the request would have needed.
	Tier string
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("request: depth %s forbids %s for %q", e.Depth, e.Tier, e.Key)
}

func (e *DepthError) Unwrap() error { return ErrDepthLimited }
