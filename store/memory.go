package store

import (
	"github.com/gogpu/pipecache"
	"github.com/gogpu/pipecache/internal/blobcache"
)

// Memory is an in-process blob store. Entries are keyed by the cache key
// alone; the device identity is passed through for the interface contract
// but not interpreted, so every device sharing one store sees the same
// entries.
//
// Memory is safe for concurrent use by any number of devices.
type Memory struct {
	cache *blobcache.Cache
}

// NewMemory creates a memory store with the given total byte budget.
// A budget <= 0 selects the default (64 MiB).
func NewMemory(budget int) *Memory {
	return &Memory{cache: blobcache.New(budget)}
}

// LoadData implements pipecache.CachingInterface.
func (m *Memory) LoadData(_ pipecache.DeviceIdentity, key []byte) []byte {
	value, ok := m.cache.Get(string(key))
	if !ok {
		return nil
	}
	// The interface hands ownership of the returned slice to the caller;
	// the resident copy stays private to the cache.
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

// StoreData implements pipecache.CachingInterface.
func (m *Memory) StoreData(_ pipecache.DeviceIdentity, key, value []byte) bool {
	buf := make([]byte, len(value))
	copy(buf, value)
	return m.cache.Set(string(key), buf)
}

// Len returns the number of resident entries. Exposed for tests that assert
// on cache population (for example, per-entry-point isolation).
func (m *Memory) Len() int {
	return m.cache.Len()
}

// Stats returns the underlying cache statistics.
func (m *Memory) Stats() blobcache.Stats {
	return m.cache.Stats()
}
