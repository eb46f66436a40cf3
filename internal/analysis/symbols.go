package analysis

import (
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// demangleCache memoizes demangled names across resolver runs.
type demangleCache struct {
	mu    sync.RWMutex
	names map[string]string
	hits  int
}

var cache = &demangleCache{
	names: make(map[string]string),
}

// CachedDemangle demangles a C++ or Rust symbol name, returning it unchanged
// when it is not mangled.
func CachedDemangle(mangled string) string {
	cache.mu.RLock()
	if cached, exists := cache.names[mangled]; exists {
		cache.mu.RUnlock()
		cache.mu.Lock()
		cache.hits++
		cache.mu.Unlock()
		return cached
	}
	cache.mu.RUnlock()

	demangled := demangle.Filter(mangled, demangle.NoClones)

	cache.mu.Lock()
	cache.names[mangled] = demangled
	cache.mu.Unlock()
	return demangled
}

// DemangleCacheStats returns the number of cached names and cache hits.
func DemangleCacheStats() (names, hits int) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return len(cache.names), cache.hits
}
