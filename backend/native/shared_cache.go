package native

import (
	"sync"

	"github.com/gogpu/pipecache"
)

// SharedPipelineCache is a refcounted handle to a PipelineCache shared
// between devices on one adapter.
//
// Devices that initialize their cache from byte-equal seed blobs receive
// the same underlying PipelineCache, so a pipeline baked on one device is
// a live hit on its siblings. Sharing is scoped to one CacheRegistry and
// registries are adapter-scoped: pipeline binaries never travel between
// adapters.
type SharedPipelineCache struct {
	registry *CacheRegistry
	cache    *PipelineCache

	// seed is the content identity entries match on. Detached private
	// entries (built without a usable seed) carry nil and never match.
	seed *pipecache.Blob

	// refs and connected are guarded by the registry mutex.
	refs      int
	connected bool
}

// Cache returns the shared underlying pipeline cache.
func (s *SharedPipelineCache) Cache() *PipelineCache {
	return s.cache
}

// Acquire adds a reference. Each Acquire needs a matching Release.
func (s *SharedPipelineCache) Acquire() *SharedPipelineCache {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.refs == 0 {
		panic("native: Acquire on released pipeline cache")
	}
	s.refs++
	return s
}

// Release drops one reference. The last release unregisters the entry
// and releases the underlying cache, flushing pending library entries.
// Releasing more times than acquired panics.
func (s *SharedPipelineCache) Release() error {
	s.registry.mu.Lock()
	if s.refs == 0 {
		s.registry.mu.Unlock()
		panic("native: Release on released pipeline cache")
	}
	s.refs--
	last := s.refs == 0
	if last && s.connected {
		s.registry.removeLocked(s)
	}
	s.registry.mu.Unlock()

	if !last {
		return nil
	}
	return s.cache.Release()
}

// Disconnect removes the entry from its registry while existing
// references stay valid. Later lookups with the same seed create a fresh
// entry. Used when the underlying cache diverges from the seed content it
// was registered under.
func (s *SharedPipelineCache) Disconnect() {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.connected {
		s.registry.removeLocked(s)
	}
}

// CacheRegistry tracks the live shared pipeline caches of one adapter.
//
// Thread Safety:
// CacheRegistry is safe for concurrent use. A single mutex guards the
// entry list and every refcount; lookups are rare (device creation) so
// contention is not a concern.
type CacheRegistry struct {
	mu      sync.Mutex
	entries []*SharedPipelineCache
}

// NewCacheRegistry creates an empty registry.
func NewCacheRegistry() *CacheRegistry {
	return &CacheRegistry{}
}

// GetOrCreate returns the shared cache registered under a byte-equal
// seed, or builds one through create and registers it. The returned
// handle holds one reference either way.
//
// A nil or empty seed means there is nothing to match siblings on, so the
// entry is built detached: a fully functional private cache that is never
// offered to later lookups. Seeds appear once a device's library has been
// flushed, which is when sharing becomes possible.
//
// When two goroutines race to create caches for equal seeds, the first
// registration wins; the loser's freshly built cache is released and the
// winner's handle is returned.
func (r *CacheRegistry) GetOrCreate(
	seed *pipecache.Blob,
	create func(seed *pipecache.Blob) (*PipelineCache, error),
) (*SharedPipelineCache, error) {
	if seed.Size() == 0 {
		cache, err := create(nil)
		if err != nil {
			return nil, err
		}
		return &SharedPipelineCache{
			registry: r,
			cache:    cache,
			refs:     1,
		}, nil
	}

	r.mu.Lock()
	if existing := r.lookupLocked(seed); existing != nil {
		existing.refs++
		r.mu.Unlock()
		return existing, nil
	}
	r.mu.Unlock()

	// Build outside the lock: library creation may deserialize a large
	// seed.
	cache, err := create(seed)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing := r.lookupLocked(seed); existing != nil {
		existing.refs++
		r.mu.Unlock()
		// Lost the race. Drop the redundant cache.
		if rerr := cache.Release(); rerr != nil {
			pipecache.Logger().Warn("native: release of redundant pipeline cache failed",
				"error", rerr)
		}
		return existing, nil
	}
	entry := &SharedPipelineCache{
		registry:  r,
		cache:     cache,
		seed:      seed,
		refs:      1,
		connected: true,
	}
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return entry, nil
}

// Len returns the number of registered entries.
func (r *CacheRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *CacheRegistry) lookupLocked(seed *pipecache.Blob) *SharedPipelineCache {
	for _, e := range r.entries {
		if blobEqual(e.seed, seed) {
			return e
		}
	}
	return nil
}

func (r *CacheRegistry) removeLocked(s *SharedPipelineCache) {
	if !s.connected {
		panic("native: pipeline cache unregistered twice")
	}
	s.connected = false
	for i, e := range r.entries {
		if e == s {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
	panic("native: pipeline cache missing from registry")
}

// blobEqual compares blob contents, treating nil as empty.
func blobEqual(a, b *pipecache.Blob) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil:
		return b.Size() == 0
	case b == nil:
		return a.Size() == 0
	default:
		return a.Equal(b)
	}
}
