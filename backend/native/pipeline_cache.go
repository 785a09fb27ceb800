package native

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/pipecache"
)

// PipelineCacheConfig configures a PipelineCache.
type PipelineCacheConfig struct {
	// Persistent is the device-scoped persistent cache the serialized
	// library is loaded from and flushed to. Nil disables persistence;
	// the cache still de-duplicates live pipelines in memory.
	Persistent *pipecache.PersistentCache

	// Key is the cache key the serialized library lives under. Must be
	// adapter-scoped: libraries only deserialize on the hardware and
	// driver that produced them.
	Key pipecache.CacheKey

	// Backend creates pipeline libraries. Nil or unsupported backends
	// put the cache in pass-through mode: every miss bakes, nothing
	// persists.
	Backend LibraryBackend

	// Baker creates pipelines on misses. Required.
	Baker Baker
}

// PipelineCache caches baked render and compute pipelines.
//
// Pipeline creation is expensive because it involves shader compilation
// and validation. The cache works in three layers: live pipelines are
// de-duplicated in memory by descriptor hash, misses consult the backend
// pipeline library, and the library itself is serialized into the
// persistent cache so later processes skip the bake entirely.
//
// Thread Safety:
// PipelineCache is safe for concurrent use. It uses RWMutex with
// double-check locking for efficient reads and safe writes. When two
// goroutines race to create the same pipeline, the first insert wins and
// later creations are discarded in favor of the cached instance.
//
// Usage:
//
//	cache := NewPipelineCache(cfg)
//	cache.Initialize()
//	pipeline, err := cache.GetOrCreateRenderPipeline(desc, shader.UsePipelineCache)
//	...
//	cache.Flush()
//
// The cache tracks hit/miss statistics for performance monitoring.
type PipelineCache struct {
	persistent *pipecache.PersistentCache
	key        pipecache.CacheKey
	backend    LibraryBackend
	baker      Baker

	// mu protects the maps, the library handle, and the dirty flag.
	mu sync.RWMutex

	// renderCache stores live render pipelines indexed by descriptor hash.
	renderCache map[uint64]*RenderPipeline

	// computeCache stores live compute pipelines indexed by descriptor hash.
	computeCache map[uint64]*ComputePipeline

	// library is the backend pipeline library, nil in pass-through mode.
	library Library

	// dirty is set when the library gained an entry since the last Flush.
	dirty bool

	initialized bool
	released    bool

	// hits counts cache hits across all layers (atomic for lock-free reads).
	hits uint64

	// misses counts lookups that had to bake (atomic for lock-free reads).
	misses uint64
}

// NewPipelineCache creates a pipeline cache. Call Initialize before the
// first lookup.
func NewPipelineCache(cfg PipelineCacheConfig) *PipelineCache {
	if cfg.Baker == nil {
		panic("native: NewPipelineCache called with nil baker")
	}
	return &PipelineCache{
		persistent:   cfg.Persistent,
		key:          cfg.Key.Clone(),
		backend:      cfg.Backend,
		baker:        cfg.Baker,
		renderCache:  make(map[uint64]*RenderPipeline),
		computeCache: make(map[uint64]*ComputePipeline),
	}
}

// Initialize creates the backend library, seeding it from the persistent
// cache when a serialized library is stored there.
//
// A corrupt or incompatible seed is not fatal: it is logged and the cache
// starts from an empty library. Without library support the cache runs in
// pass-through mode. Initialize is idempotent.
func (c *PipelineCache) Initialize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized || c.released {
		return
	}
	c.initialized = true

	if c.backend == nil || !c.backend.Supported() {
		pipecache.Logger().Debug("native: pipeline library unsupported, pass-through mode")
		return
	}

	var seed *pipecache.Blob
	if c.persistent != nil {
		seed = c.persistent.LoadData(c.key)
	}

	lib, err := c.backend.CreateLibrary(seed)
	if err != nil {
		// Stale driver blobs and truncated writes land here. Start fresh.
		pipecache.Logger().Warn("native: pipeline library seed rejected, starting empty",
			"error", err)
		lib, err = c.backend.CreateLibrary(nil)
		if err != nil {
			pipecache.Logger().Warn("native: pipeline library unavailable, pass-through mode",
				"error", err)
			return
		}
	}
	c.library = lib

	if seed != nil {
		pipecache.Logger().Debug("native: pipeline library seeded",
			"entries", lib.Len(), "seedSize", seed.Size())
	}
}

// libraryEntryName returns the library entry name for a descriptor hash.
// Names are the decimal form of the hash so equal descriptors map to the
// same entry in every process.
func libraryEntryName(descHash uint64) string {
	return strconv.FormatUint(descHash, 10)
}

// GetOrCreateRenderPipeline returns a cached pipeline or bakes a new one.
//
// Lookup order: live in-memory pipelines, then the backend library, then
// a full bake. allowCache gates the library layer only; callers pass
// CompiledShader.UsePipelineCache so pipelines built from freshly
// regenerated debug shaders never touch the library in either direction.
//
// Returns nil and an error if the descriptor is nil, the bake fails, or
// the library reports a failure other than a plain miss.
//
//nolint:dupl // Intentional pattern: same double-check locking for both render and compute pipelines
func (c *PipelineCache) GetOrCreateRenderPipeline(
	desc *RenderPipelineDescriptor,
	allowCache bool,
) (*RenderPipeline, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}

	descHash := desc.Hash()

	// Fast path: read lock
	c.mu.RLock()
	if c.released {
		c.mu.RUnlock()
		return nil, ErrCacheReleased
	}
	if pipeline, ok := c.renderCache[descHash]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return pipeline, nil
	}
	c.mu.RUnlock()

	pipeline, err := c.bakeRenderPipeline(descHash, desc, allowCache)
	if err != nil {
		return nil, err
	}

	// Publish under write lock with double-check. First insert wins.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrCacheReleased
	}
	if existing, ok := c.renderCache[descHash]; ok {
		atomic.AddUint64(&c.hits, 1)
		return existing, nil
	}
	c.renderCache[descHash] = pipeline

	if allowCache && !pipeline.FromLibrary && c.library != nil {
		c.storeRenderLocked(descHash, desc, pipeline)
	}
	return pipeline, nil
}

// bakeRenderPipeline produces a pipeline outside the cache lock, from
// the library when allowed and populated, otherwise through the baker.
func (c *PipelineCache) bakeRenderPipeline(
	descHash uint64,
	desc *RenderPipelineDescriptor,
	allowCache bool,
) (*RenderPipeline, error) {
	lib := c.libraryRef()
	if allowCache && lib != nil {
		pipeline, err := lib.LoadRenderPipeline(libraryEntryName(descHash), desc)
		if err == nil {
			atomic.AddUint64(&c.hits, 1)
			return pipeline, nil
		}
		if !errors.Is(err, ErrEntryNotFound) {
			// Only a plain miss falls through. Anything else is a genuine
			// platform problem, not a cache-state condition.
			return nil, fmt.Errorf("native: pipeline library load %d: %w", descHash, err)
		}
	}

	atomic.AddUint64(&c.misses, 1)
	pipeline, err := c.baker.BakeRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("native: bake render pipeline %q: %w", desc.Label, err)
	}
	return pipeline, nil
}

// storeRenderLocked records a freshly baked pipeline in the library.
// Duplicate entries are benign: a concurrent bake of the same descriptor
// got there first.
func (c *PipelineCache) storeRenderLocked(descHash uint64, desc *RenderPipelineDescriptor, p *RenderPipeline) {
	err := c.library.StoreRenderPipeline(libraryEntryName(descHash), desc, p)
	switch {
	case err == nil:
		c.dirty = true
	case errors.Is(err, ErrEntryExists):
	default:
		pipecache.Logger().Warn("native: pipeline library store failed",
			"hash", descHash, "error", err)
	}
}

// GetOrCreateComputePipeline returns a cached pipeline or bakes a new one.
//
// Identical layering to GetOrCreateRenderPipeline.
//
//nolint:dupl // Intentional pattern: same double-check locking for both render and compute pipelines
func (c *PipelineCache) GetOrCreateComputePipeline(
	desc *ComputePipelineDescriptor,
	allowCache bool,
) (*ComputePipeline, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}

	descHash := desc.Hash()

	// Fast path: read lock
	c.mu.RLock()
	if c.released {
		c.mu.RUnlock()
		return nil, ErrCacheReleased
	}
	if pipeline, ok := c.computeCache[descHash]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return pipeline, nil
	}
	c.mu.RUnlock()

	pipeline, err := c.bakeComputePipeline(descHash, desc, allowCache)
	if err != nil {
		return nil, err
	}

	// Publish under write lock with double-check. First insert wins.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrCacheReleased
	}
	if existing, ok := c.computeCache[descHash]; ok {
		atomic.AddUint64(&c.hits, 1)
		return existing, nil
	}
	c.computeCache[descHash] = pipeline

	if allowCache && !pipeline.FromLibrary && c.library != nil {
		c.storeComputeLocked(descHash, desc, pipeline)
	}
	return pipeline, nil
}

func (c *PipelineCache) bakeComputePipeline(
	descHash uint64,
	desc *ComputePipelineDescriptor,
	allowCache bool,
) (*ComputePipeline, error) {
	lib := c.libraryRef()
	if allowCache && lib != nil {
		pipeline, err := lib.LoadComputePipeline(libraryEntryName(descHash), desc)
		if err == nil {
			atomic.AddUint64(&c.hits, 1)
			return pipeline, nil
		}
		if !errors.Is(err, ErrEntryNotFound) {
			return nil, fmt.Errorf("native: pipeline library load %d: %w", descHash, err)
		}
	}

	atomic.AddUint64(&c.misses, 1)
	pipeline, err := c.baker.BakeComputePipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("native: bake compute pipeline %q: %w", desc.Label, err)
	}
	return pipeline, nil
}

func (c *PipelineCache) storeComputeLocked(descHash uint64, desc *ComputePipelineDescriptor, p *ComputePipeline) {
	err := c.library.StoreComputePipeline(libraryEntryName(descHash), desc, p)
	switch {
	case err == nil:
		c.dirty = true
	case errors.Is(err, ErrEntryExists):
	default:
		pipecache.Logger().Warn("native: pipeline library store failed",
			"hash", descHash, "error", err)
	}
}

func (c *PipelineCache) libraryRef() Library {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.library
}

// Flush serializes the library into the persistent cache if it gained
// entries since the last flush. Clean caches flush as a no-op, so
// calling it periodically and again at teardown is safe and cheap.
func (c *PipelineCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty || c.library == nil || c.released {
		return nil
	}

	blob, err := c.library.Serialize()
	if err != nil {
		return fmt.Errorf("native: serialize pipeline library: %w", err)
	}
	c.dirty = false
	if blob == nil || c.persistent == nil {
		return nil
	}

	c.persistent.StoreData(c.key, blob.Bytes())
	pipecache.Logger().Debug("native: pipeline library flushed",
		"entries", c.library.Len(), "size", blob.Size())
	return nil
}

// Release flushes pending library entries and drops every cached
// pipeline. The cache rejects lookups afterwards. Idempotent.
func (c *PipelineCache) Release() error {
	err := c.Flush()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return err
	}
	c.released = true

	if c.library != nil {
		c.library.Destroy()
		c.library = nil
	}
	c.renderCache = nil
	c.computeCache = nil
	return err
}

// HitCount returns the number of cache hits.
func (c *PipelineCache) HitCount() uint64 {
	return atomic.LoadUint64(&c.hits)
}

// MissCount returns the number of lookups that baked a new pipeline.
func (c *PipelineCache) MissCount() uint64 {
	return atomic.LoadUint64(&c.misses)
}

// Len returns the number of live cached pipelines (render plus compute).
func (c *PipelineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.renderCache) + len(c.computeCache)
}
