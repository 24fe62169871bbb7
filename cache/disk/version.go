package disk

import (
	"fmt"
	"math"
)

// MaxVersion is the largest application or internal version accepted.
const MaxVersion = math.MaxInt16

// UnionVersion packs an application version and an internal format version
// into the single version stored in the journal header. Changing either
// invalidates the cache.
func UnionVersion(appVersion, internalVersion int) (int, error) {
	if appVersion < 1 || appVersion > MaxVersion {
		return 0, fmt.Errorf("disk: app version %d out of range [1, %d]", appVersion, MaxVersion)
	}
	if internalVersion < 1 || internalVersion > MaxVersion {
		return 0, fmt.Errorf("disk: internal version %d out of range [1, %d]", internalVersion, MaxVersion)
	}
	return appVersion<<16 | internalVersion, nil
}
