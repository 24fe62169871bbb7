package decode

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDecoder is returned when no registered factory accepts the data.
	ErrNoDecoder = errors.New("decode: no decoder for data")

	// ErrUnsupportedFormat is returned for data in an unknown image format.
	ErrUnsupportedFormat = errors.New("decode: unsupported image format")

	// ErrImageTooLarge is returned for an image above the decoder's pixel bound.
	ErrImageTooLarge = errors.New("decode: image too large")
)

// Error describes a failed decode.
type Error struct {
	URI      string
	MimeType string
	Err      error
}

func (e *Error) Error() string {
	if e.MimeType != "" {
		return fmt.Sprintf("decode %s (%s): %v", e.URI, e.MimeType, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.URI, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
