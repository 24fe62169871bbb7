package disk

import (
	_ "crypto/sha256" // registers digest.Canonical
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"
)

const defaultKeyMapperSize = 256

// KeyMapper maps arbitrary cache keys to the hex sha256 file names used on
// disk. Recent mappings are memoized.
type KeyMapper struct {
	once  sync.Once
	size  int
	cache *lru.Cache[string, string]
}

// NewKeyMapper returns a KeyMapper memoizing up to size mappings.
func NewKeyMapper(size int) *KeyMapper {
	return &KeyMapper{size: size}
}

// Map returns the file name for key.
func (m *KeyMapper) Map(key string) string {
	m.once.Do(func() {
		size := m.size
		if size <= 0 {
			size = defaultKeyMapperSize
		}
		m.cache, _ = lru.New[string, string](size)
	})
	if v, ok := m.cache.Get(key); ok {
		return v
	}
	v := digest.FromString(key).Encoded()
	m.cache.Add(key, v)
	return v
}
