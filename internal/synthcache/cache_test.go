package synthcache

import (
	"fmt"
	"testing"
)

func TestGetOrComputeMemoizes(t *testing.T) {
	cache, err := New[string](4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	computed := 0
	compute := func() string {
		computed++
		return "audio"
	}

	if got := cache.GetOrCompute("안녕하세요", compute); got != "audio" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := cache.GetOrCompute("안녕하세요", compute); got != "audio" {
		t.Fatalf("unexpected value on hit: %q", got)
	}
	if computed != 1 {
		t.Fatalf("expected single compute, got %d", computed)
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestExactKeyMatch(t *testing.T) {
	cache, err := New[int](4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cache.GetOrCompute("hello", func() int { return 1 })
	if cache.Contains("Hello") || cache.Contains("hello ") {
		t.Fatal("expected no match for differently-cased or padded keys")
	}
	if !cache.Contains("hello") {
		t.Fatal("expected exact key to be present")
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	const capacity = 32
	cache, err := New[int](capacity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < capacity+1; i++ {
		key := fmt.Sprintf("phrase-%d", i)
		cache.GetOrCompute(key, func() int { return i })
	}

	if cache.Len() != capacity {
		t.Fatalf("expected length %d, got %d", capacity, cache.Len())
	}
	if cache.Contains("phrase-0") {
		t.Fatal("expected oldest entry to be evicted")
	}
	if !cache.Contains("phrase-32") {
		t.Fatal("expected newest entry to be present")
	}
}

func TestRecencyProtectsEntries(t *testing.T) {
	cache, err := New[int](2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cache.GetOrCompute("a", func() int { return 1 })
	cache.GetOrCompute("b", func() int { return 2 })
	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	cache.GetOrCompute("c", func() int { return 3 })

	if !cache.Contains("a") || cache.Contains("b") || !cache.Contains("c") {
		t.Fatalf("unexpected residency: a=%v b=%v c=%v",
			cache.Contains("a"), cache.Contains("b"), cache.Contains("c"))
	}
}

func TestZeroCapacityRejected(t *testing.T) {
	if _, err := New[int](0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}
