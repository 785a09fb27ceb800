// Package intern provides a small fingerprint-keyed pool for blueprint
// objects. Blueprints (attachment states, layouts) are structurally
// compared by their memoized fingerprint so that equal configurations are
// represented by one shared instance.
package intern

import "sync"

// Pool maps fingerprint keys to interned values with a soft size limit.
// When the pool exceeds the limit, the least recently touched entries are
// dropped; dropped blueprints are simply re-created and re-interned on next
// use, so eviction is always safe.
//
// Pool is safe for concurrent use.
type Pool[V any] struct {
	mu        sync.Mutex
	entries   map[uint64]*poolEntry[V]
	softLimit int
	tick      int64 // monotonic access counter
}

type poolEntry[V any] struct {
	value V
	atime int64
}

// New creates a pool with the given soft limit. A limit of 0 means
// unlimited.
func New[V any](softLimit int) *Pool[V] {
	return &Pool[V]{
		entries:   make(map[uint64]*poolEntry[V]),
		softLimit: softLimit,
	}
}

// GetOrCreate returns the interned value for key, creating and interning it
// if absent. create runs under the pool lock to prevent duplicate interning
// of the same blueprint; keep it cheap.
func (p *Pool[V]) GetOrCreate(key uint64, create func() V) V {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok {
		p.tick++
		e.atime = p.tick
		return e.value
	}

	value := create()
	p.tick++
	p.entries[key] = &poolEntry[V]{value: value, atime: p.tick}

	if p.softLimit > 0 && len(p.entries) > p.softLimit {
		p.evictOldest()
	}
	return value
}

// Get returns the interned value for key, if present.
func (p *Pool[V]) Get(key uint64) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	p.tick++
	e.atime = p.tick
	return e.value, true
}

// Len returns the number of interned entries.
func (p *Pool[V]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Clear drops every interned entry.
func (p *Pool[V]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[uint64]*poolEntry[V])
	p.tick = 0
}

// evictOldest removes entries until the pool is at 75% of the soft limit.
// Caller must hold p.mu.
func (p *Pool[V]) evictOldest() {
	target := p.softLimit * 3 / 4
	if target < 1 {
		target = 1
	}
	toEvict := len(p.entries) - target
	if toEvict <= 0 {
		return
	}

	type aged struct {
		key   uint64
		atime int64
	}
	all := make([]aged, 0, len(p.entries))
	for key, e := range p.entries {
		all = append(all, aged{key: key, atime: e.atime})
	}

	// Selection of the oldest entries; pools are small enough that the
	// quadratic pass never shows up in profiles.
	for i := 0; i < toEvict && i < len(all); i++ {
		minIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].atime < all[minIdx].atime {
				minIdx = j
			}
		}
		if minIdx != i {
			all[i], all[minIdx] = all[minIdx], all[i]
		}
		delete(p.entries, all[i].key)
	}
}
