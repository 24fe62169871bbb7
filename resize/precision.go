package resize

import (
	"fmt"
	"strings"
)

// Precision controls how strictly the output must match the requested size.
type Precision int

const (
	// LessPixels keeps the source aspect ratio and only guarantees the output
	// has no more pixels than requested. Used purely to save memory.
	LessPixels Precision = iota

	// SameAspectRatio crops the source to the requested aspect ratio. The
	// output never exceeds the requested size and is never upscaled.
	SameAspectRatio

	// Exactly produces output of exactly the requested size.
	Exactly
)

// String returns the precision name.
func (p Precision) String() string {
	switch p {
	case LessPixels:
		return "LessPixels"
	case SameAspectRatio:
		return "SameAspectRatio"
	case Exactly:
		return "Exactly"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// ParsePrecision parses a precision name, case-insensitively. Both
// "SameAspectRatio" and "same_aspect_ratio" forms are accepted.
func ParsePrecision(v string) (Precision, error) {
	switch normalizeName(v) {
	case "lesspixels":
		return LessPixels, nil
	case "sameaspectratio":
		return SameAspectRatio, nil
	case "exactly":
		return Exactly, nil
	default:
		return 0, fmt.Errorf("resize: unknown precision %q", v)
	}
}

func normalizeName(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, "_", "")
	return strings.ReplaceAll(v, "-", "")
}
