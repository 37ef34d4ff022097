package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "value", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got string
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	var got string
	err := mc.Get(context.Background(), "absent", &got)
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "value", 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	var got string
	if err := mc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss after expiry, got %v", err)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "position:NVDA", "a", time.Minute)
	_ = mc.Set(ctx, "position:TSLA", "b", time.Minute)
	_ = mc.Set(ctx, "alert:NVDA", "c", time.Minute)

	if err := mc.DeleteByPattern(ctx, BuildPattern("position")); err != nil {
		t.Fatalf("delete by pattern: %v", err)
	}

	var got string
	if err := mc.Get(ctx, "position:NVDA", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected position entries gone, got %v", err)
	}
	if err := mc.Get(ctx, "alert:NVDA", &got); err != nil {
		t.Fatalf("alert entry must survive: %v", err)
	}
}

func TestMemoryCacheJSONRoundtrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type payload struct {
		Ticker string  `json:"ticker"`
		Value  float64 `json:"value"`
	}
	if err := mc.Set(ctx, "k", payload{Ticker: "NVDA", Value: 42.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Ticker != "NVDA" || got.Value != 42.5 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", time.Minute)
	_ = mc.Set(ctx, "b", "2", time.Minute)

	// Touch "a" so "b" is the LRU entry when "c" forces eviction.
	var got string
	_ = mc.Get(ctx, "a", &got)
	_ = mc.Set(ctx, "c", "3", time.Minute)

	if err := mc.Get(ctx, "b", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &got); err != nil {
		t.Fatalf("a must survive: %v", err)
	}
}
