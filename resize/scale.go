package resize

import "fmt"

// Scale selects which region of the source maps into the destination when
// cropping is required.
type Scale int

const (
	// CenterCrop keeps the center of the source.
	CenterCrop Scale = iota

	// StartCrop keeps the top (or left) of the source.
	StartCrop

	// EndCrop keeps the bottom (or right) of the source.
	EndCrop

	// Fill stretches the whole source without preserving aspect ratio.
	Fill
)

// String returns the scale name.
func (s Scale) String() string {
	switch s {
	case CenterCrop:
		return "CenterCrop"
	case StartCrop:
		return "StartCrop"
	case EndCrop:
		return "EndCrop"
	case Fill:
		return "Fill"
	default:
		return fmt.Sprintf("Scale(%d)", int(s))
	}
}

// ParseScale parses a scale name, case-insensitively.
func ParseScale(v string) (Scale, error) {
	switch normalizeName(v) {
	case "centercrop":
		return CenterCrop, nil
	case "startcrop":
		return StartCrop, nil
	case "endcrop":
		return EndCrop, nil
	case "fill":
		return Fill, nil
	default:
		return 0, fmt.Errorf("resize: unknown scale %q", v)
	}
}
