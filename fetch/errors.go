package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFetcher is returned when no registered factory accepts a URI.
	ErrNoFetcher = errors.New("fetch: no fetcher for uri")

	// ErrTimeout is returned when a network fetch exceeds its timeout.
	ErrTimeout = errors.New("fetch: timeout")

	// ErrNotFound is returned when the addressed content does not exist.
	ErrNotFound = errors.New("fetch: not found")

	// ErrHTTPStatus is returned for non-2xx HTTP responses.
	ErrHTTPStatus = errors.New("fetch: unexpected http status")

	// ErrTooLarge is returned when a download exceeds its size bound.
	ErrTooLarge = errors.New("fetch: content too large")
)

// Error describes a failed fetch.
type Error struct {
	URI string
	// StatusCode is the HTTP status for ErrHTTPStatus failures.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URI, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URI, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
