package resize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a width and height in pixels.
// The zero Size means the original image size (no resize).
type Size struct {
	Width  int
	Height int
}

// NewSize returns a Size with the given dimensions.
func NewSize(width, height int) Size {
	return Size{Width: width, Height: height}
}

// IsEmpty reports whether either dimension is non-positive.
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Pixels returns Width*Height as int64.
func (s Size) Pixels() int64 {
	return int64(s.Width) * int64(s.Height)
}

// String formats the size as "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize parses a "WxH" string.
func ParseSize(v string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(v)), "x")
	if !ok {
		return Size{}, fmt.Errorf("resize: invalid size %q", v)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Size{}, fmt.Errorf("resize: invalid width in %q: %w", v, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Size{}, fmt.Errorf("resize: invalid height in %q: %w", v, err)
	}
	return Size{Width: width, Height: height}, nil
}
