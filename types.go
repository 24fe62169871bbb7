package sketch

import (
	"log/slog"

	"github.com/MaTriXy/Sketch/cache/memory"
	"github.com/MaTriXy/Sketch/decode"
	"github.com/MaTriXy/Sketch/request"
)

// --- Re-exports ---

// Request describes one image load.
type Request = request.Request

// Result is a decoded image with its provenance.
type Result = decode.Result

// MemoryCache holds decoded results in memory.
type MemoryCache = memory.Cache[*decode.Result]

// NewMemoryCache returns a memory cache weighing results by their bitmap size.
func NewMemoryCache(maxSize int64, logger *slog.Logger) *MemoryCache {
	return memory.New[*decode.Result](maxSize, memory.WithLogger(logger))
}
