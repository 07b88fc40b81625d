package engine

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheGetPut(t *testing.T) {
	c := NewCache[string]("test_get_put", 10, time.Minute, 20)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss on empty cache")
	}

	c.Put("a", "hello")
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}

	c.Put("a", "updated")
	if got, _ := c.Get("a"); got != "updated" {
		t.Errorf("got %q after update, want %q", got, "updated")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after updating same key, want 1", c.Len())
	}
}

func TestCacheExpiration(t *testing.T) {
	c := NewCache[string]("test_expiry", 10, time.Millisecond, 20)

	c.Put("a", "temp")
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after TTL expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, Len() = %d", c.Len())
	}

	stats := c.Stats()
	if stats.Expirations != 1 {
		t.Errorf("Expirations = %d, want 1", stats.Expirations)
	}
}

func TestCacheBatchEviction(t *testing.T) {
	// maxSize=10, evictPct=20 → batch of 2 per eviction.
	c := NewCache[int]("test_evict", 10, 0, 20)

	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	if c.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", c.Len())
	}

	// Touch k0 and k1 so the LRU tail is k2, k3.
	c.Get("k0")
	c.Get("k1")

	c.Put("k10", 10)
	if c.Len() != 9 { // 10 - batch(2) + 1 new
		t.Errorf("Len() = %d after eviction, want 9", c.Len())
	}
	if _, ok := c.Get("k2"); ok {
		t.Error("k2 should have been evicted as LRU tail")
	}
	if _, ok := c.Get("k3"); ok {
		t.Error("k3 should have been evicted as LRU tail")
	}
	if _, ok := c.Get("k0"); !ok {
		t.Error("recently used k0 should survive eviction")
	}

	stats := c.Stats()
	if stats.Evictions != 2 {
		t.Errorf("Evictions = %d, want 2", stats.Evictions)
	}
}

func TestCacheBatchSizeRoundsUp(t *testing.T) {
	// maxSize=3, evictPct=20 → ceil(0.6) = 1 per eviction.
	c := NewCache[int]("test_evict_ceil", 3, 0, 20)

	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("oldest entry should be gone")
	}
}

func TestCacheClearAndStats(t *testing.T) {
	c := NewCache[string]("test_clear", 10, time.Minute, 20)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Get("a")       // hit
	c.Get("missing") // miss

	if n := c.Clear(); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after clear, want 0", c.Len())
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.HitRatio != 0.5 {
		t.Errorf("HitRatio = %v, want 0.5", stats.HitRatio)
	}
}

func TestCacheRemove(t *testing.T) {
	c := NewCache[string]("test_remove", 10, 0, 20)
	c.Put("a", "1")

	if !c.Remove("a") {
		t.Error("Remove existing key should report true")
	}
	if c.Remove("a") {
		t.Error("Remove absent key should report false")
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	k1 := CacheKey("transcript", "abc123", "10")
	k2 := CacheKey("transcript", "abc123", "10")
	if k1 != k2 {
		t.Errorf("CacheKey not deterministic: %q != %q", k1, k2)
	}
	if k1[:3] != "yi:" {
		t.Errorf("expected yi: prefix, got %q", k1[:3])
	}
	if k1 == CacheKey("transcript", "abc123", "20") {
		t.Error("different parts produced same key")
	}
}
