package request

// CachePolicy controls whether a cache tier may be read and written.
type CachePolicy int

const (
	Enabled CachePolicy = iota
	ReadOnly
	WriteOnly
	Disabled
)

// ReadEnabled reports whether the tier may be read.
func (p CachePolicy) ReadEnabled() bool { return p == Enabled || p == ReadOnly }

// WriteEnabled reports whether the tier may be written.
func (p CachePolicy) WriteEnabled() bool { return p == Enabled || p == WriteOnly }

func (p CachePolicy) String() string {
	switch p {
	case Enabled:
		return "ENABLED"
	case ReadOnly:
		return "READ_ONLY"
	case WriteOnly:
		return "WRITE_ONLY"
	case Disabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// Depth bounds how far the engine may go to satisfy a request.
type Depth int

const (
	// DepthNetwork allows every tier.
	DepthNetwork Depth = iota
	// DepthLocal allows caches and local sources but no network.
	DepthLocal
	// DepthMemory allows only the memory cache.
	DepthMemory
)

func (d Depth) String() string {
	switch d {
	case DepthNetwork:
		return "NETWORK"
	case DepthLocal:
		return "LOCAL"
	case DepthMemory:
		return "MEMORY"
	default:
		return "UNKNOWN"
	}
}
