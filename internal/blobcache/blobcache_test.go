package blobcache

import (
	"fmt"
	"sync"
	"testing"
)

func TestCacheGetSet(t *testing.T) {
	c := New(0)

	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache reported a hit")
	}
	if !c.Set("a", []byte("value")) {
		t.Fatal("Set refused a small value")
	}
	got, ok := c.Get("a")
	if !ok || string(got) != "value" {
		t.Errorf("Get = %q, %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if c.Bytes() != 5 {
		t.Errorf("Bytes = %d, want 5", c.Bytes())
	}
}

func TestCacheUpdateAdjustsBytes(t *testing.T) {
	c := New(0)
	c.Set("a", []byte("12345678"))
	c.Set("a", []byte("12"))

	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if c.Bytes() != 2 {
		t.Errorf("Bytes = %d, want 2", c.Bytes())
	}
}

func TestCacheDelete(t *testing.T) {
	c := New(0)
	c.Set("a", []byte("v"))

	if !c.Delete("a") {
		t.Error("Delete missed a present key")
	}
	if c.Delete("a") {
		t.Error("Delete reported success twice")
	}
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Errorf("Len/Bytes = %d/%d after delete", c.Len(), c.Bytes())
	}
}

func TestCacheRefusesOversizedValue(t *testing.T) {
	// Budget is split across shards; a value exceeding one shard's share
	// can never become resident.
	c := New(shardCount * 8)
	if c.Set("a", make([]byte, 16)) {
		t.Error("oversized value accepted")
	}
	if c.Len() != 0 {
		t.Error("oversized value left residue")
	}
}

func TestCacheEvictsLRU(t *testing.T) {
	// Two 8-byte values fit per shard, the third evicts the least
	// recently used. Keys land in one shard only by luck, so drive a
	// single shard deterministically through many inserts instead:
	// resident bytes must never exceed the budget.
	budget := shardCount * 16
	c := New(budget)

	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key-%d", i), make([]byte, 8))
	}
	if c.Bytes() > budget {
		t.Errorf("resident bytes %d exceed budget %d", c.Bytes(), budget)
	}
	if c.Stats().Evictions == 0 {
		t.Error("no evictions despite overflow")
	}
}

func TestCacheStats(t *testing.T) {
	c := New(0)
	c.Set("a", []byte("v"))
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", s.Hits, s.Misses)
	}
	if s.Len != 1 {
		t.Errorf("Len = %d, want 1", s.Len)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i%10)
				c.Set(key, []byte("value"))
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() != 80 {
		t.Errorf("Len = %d, want 80", c.Len())
	}
}
