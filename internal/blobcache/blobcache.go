// Package blobcache provides a sharded, byte-budgeted LRU map from opaque
// byte-string keys to blob values. It backs the in-memory CachingInterface
// host and the disk store's hot layer.
package blobcache

import (
	"sync"
	"sync/atomic"
)

const (
	// shardCount is the number of shards for reduced lock contention.
	// Must be a power of 2 for fast modulo via bitwise AND.
	shardCount = 16

	// shardMask is used for fast shard selection.
	shardMask = shardCount - 1

	// DefaultBudget is the default total byte budget (64 MiB). Shader
	// bytecode entries run a few KiB; serialized pipeline libraries can
	// reach tens of MiB, so the budget is on bytes, not entry counts.
	DefaultBudget = 64 << 20

	// fnv64 constants for shard selection.
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// Cache is a sharded LRU keyed by opaque byte strings.
//
// Values are stored as handed in and returned as handed out; the caller
// is responsible for not mutating a stored slice. Eviction is per shard
// by resident byte size.
//
// Cache is safe for concurrent use.
type Cache struct {
	shards [shardCount]*shard
	budget int // per-shard byte budget

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lru     *lruList
	bytes   int
}

type entry struct {
	value []byte
	node  *lruNode
}

// New creates a cache with the given total byte budget across all shards.
// A budget <= 0 selects DefaultBudget.
func New(budget int) *Cache {
	if budget <= 0 {
		budget = DefaultBudget
	}
	c := &Cache{budget: budget / shardCount}
	if c.budget < 1 {
		c.budget = 1
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			entries: make(map[string]*entry),
			lru:     &lruList{},
		}
	}
	return c
}

// shardFor selects the shard for a key using FNV-1a over the key bytes.
func (c *Cache) shardFor(key string) *shard {
	h := uint64(fnvOffset64)
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= fnvPrime64
	}
	return c.shards[h&shardMask]
}

// Get retrieves a value by key. Returns (nil, false) on a miss.
// On a hit, the entry is moved to the front of its shard's LRU list.
func (c *Cache) Get(key string) ([]byte, bool) {
	s := c.shardFor(key)

	// Fast path: read lock to check existence.
	s.mu.RLock()
	_, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		c.misses.Add(1)
		return nil, false
	}

	// Slow path: write lock for the LRU update.
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		// Evicted between the locks.
		s.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	s.lru.MoveToFront(e.node)
	value := e.value
	s.mu.Unlock()

	c.hits.Add(1)
	return value, true
}

// Set stores a value under key. A value larger than the whole shard budget
// is refused (it would evict everything and still not fit sensibly).
// Returns whether the value is resident after the call.
func (c *Cache) Set(key string, value []byte) bool {
	if len(value) > c.budget {
		return false
	}
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		s.bytes += len(value) - len(existing.value)
		existing.value = value
		s.lru.MoveToFront(existing.node)
		c.evictUntilFit(s)
		return true
	}

	s.bytes += len(value)
	node := s.lru.PushFront(key)
	s.entries[key] = &entry{value: value, node: node}
	c.evictUntilFit(s)
	return true
}

// evictUntilFit drops least-recently-used entries until the shard is
// within budget. Caller must hold s.mu.
func (c *Cache) evictUntilFit(s *shard) {
	for s.bytes > c.budget {
		oldest, ok := s.lru.RemoveOldest()
		if !ok {
			return
		}
		if e, ok := s.entries[oldest]; ok {
			s.bytes -= len(e.value)
			delete(s.entries, oldest)
			c.evictions.Add(1)
		}
	}
}

// Delete removes an entry. Returns true if it was present.
func (c *Cache) Delete(key string) bool {
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.lru.Remove(e.node)
	s.bytes -= len(e.value)
	delete(s.entries, key)
	return true
}

// Len returns the total number of entries across all shards.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// Bytes returns the total resident byte size across all shards.
func (c *Cache) Bytes() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += s.bytes
		s.mu.RUnlock()
	}
	return total
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Bytes is the resident byte size.
	Bytes int
	// Hits is the number of cache hits.
	Hits uint64
	// Misses is the number of cache misses.
	Misses uint64
	// Evictions is the number of evicted entries.
	Evictions uint64
}

// Stats returns current statistics. Counter reads are atomic and may not be
// perfectly synchronized with each other.
func (c *Cache) Stats() Stats {
	return Stats{
		Len:       c.Len(),
		Bytes:     c.Bytes(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
