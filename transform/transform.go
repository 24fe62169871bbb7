// Package transform provides post-decode bitmap transformations.
//
// Every transformation has a Key that participates in request keys and
// records a tag in the result's transformed record when it actually changes
// the image. A transformation that would be a no-op returns a nil Result.
package transform

import (
	"context"
	"image"
	"strings"
)

// Transformation turns one image into another.
// Implementations must not modify the input image.
type Transformation interface {
	// Key identifies the transformation and its parameters in request keys.
	Key() string

	// Transform returns the transformed image, or nil if the input is
	// returned unchanged.
	Transform(ctx context.Context, img image.Image) (*Result, error)
}

// Result is the output of a Transformation.
type Result struct {
	Image image.Image

	// Transformed is the provenance tag appended to the transformed record.
	Transformed string
}

// Keys returns the keys of the given transformations in order.
func Keys(transformations []Transformation) []string {
	if len(transformations) == 0 {
		return nil
	}
	keys := make([]string, 0, len(transformations))
	for _, t := range transformations {
		keys = append(keys, t.Key())
	}
	return keys
}

// FindTransformed returns the first tag in record whose name matches name,
// where a tag looks like "Name(args)".
func FindTransformed(record []string, name string) (string, bool) {
	prefix := name + "("
	for _, tag := range record {
		if strings.HasPrefix(tag, prefix) {
			return tag, true
		}
	}
	return "", false
}
