package native

import (
	"sync"

	"github.com/gogpu/pipecache"
)

// ContextHandle identifies an externally owned device context, typically
// the numeric value of a native API handle.
type ContextHandle uint64

// DeviceCacheContext bundles the cache state attached to one externally
// owned device: its persistent cache and its shared pipeline cache
// reference. The registry owns the shared reference and releases it when
// the entry goes away.
type DeviceCacheContext struct {
	Device     pipecache.DeviceIdentity
	Persistent *pipecache.PersistentCache
	Shared     *SharedPipelineCache
}

type contextEntry struct {
	ctx *DeviceCacheContext

	// alive reports whether the external owner still holds the device.
	// Nil means the owner manages removal explicitly.
	alive func() bool
}

// ContextRegistry tracks cache contexts for externally owned devices,
// keyed by their native handle.
//
// Liveness is owner-driven: each entry may carry an alive callback, and
// dead entries are swept only by explicit Prune calls or replaced when
// their handle is looked up again. Nothing here runs on finalizers; the
// embedder decides when handles die.
//
// Thread Safety:
// ContextRegistry is safe for concurrent use.
type ContextRegistry struct {
	mu      sync.Mutex
	entries map[ContextHandle]contextEntry
}

// NewContextRegistry creates an empty registry.
func NewContextRegistry() *ContextRegistry {
	return &ContextRegistry{entries: make(map[ContextHandle]contextEntry)}
}

// GetOrCreate returns the context registered under handle, building one
// through create on first use. An existing entry whose alive callback
// reports false is torn down and rebuilt, so a recycled native handle
// never resurrects a dead device's caches.
func (r *ContextRegistry) GetOrCreate(
	handle ContextHandle,
	alive func() bool,
	create func() (*DeviceCacheContext, error),
) (*DeviceCacheContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[handle]; ok {
		if e.alive == nil || e.alive() {
			return e.ctx, nil
		}
		r.releaseLocked(handle, e)
	}

	ctx, err := create()
	if err != nil {
		return nil, err
	}
	r.entries[handle] = contextEntry{ctx: ctx, alive: alive}
	return ctx, nil
}

// Lookup returns the live context for handle, if any.
func (r *ContextRegistry) Lookup(handle ContextHandle) (*DeviceCacheContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[handle]
	if !ok || (e.alive != nil && !e.alive()) {
		return nil, false
	}
	return e.ctx, true
}

// Remove tears down the entry for handle, releasing its shared pipeline
// cache reference. Removing an unknown handle is a no-op.
func (r *ContextRegistry) Remove(handle ContextHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[handle]; ok {
		r.releaseLocked(handle, e)
	}
}

// Prune tears down every entry whose owner reports it dead and returns
// the number removed. Entries without an alive callback are kept.
func (r *ContextRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for handle, e := range r.entries {
		if e.alive != nil && !e.alive() {
			r.releaseLocked(handle, e)
			removed++
		}
	}
	return removed
}

// Len returns the number of registered contexts, dead or alive.
func (r *ContextRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *ContextRegistry) releaseLocked(handle ContextHandle, e contextEntry) {
	delete(r.entries, handle)
	if e.ctx != nil && e.ctx.Shared != nil {
		if err := e.ctx.Shared.Release(); err != nil {
			pipecache.Logger().Warn("native: release of context pipeline cache failed",
				"handle", uint64(handle), "error", err)
		}
	}
}
