package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// countingSource wraps Static and counts how many lookups reach it.
type countingSource struct {
	inner *Static
	calls int
}

func (c *countingSource) Vehicle(ctx context.Context, name string) (*Vehicle, bool, error) {
	c.calls++
	return c.inner.Vehicle(ctx, name)
}

func newCacheUnderTest(t *testing.T, ttl time.Duration) (*Cache, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	src := &countingSource{inner: NewStatic()}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(src, client, ttl, nil), src, mr
}

func TestCacheServesFromRedis(t *testing.T) {
	cache, src, _ := newCacheUnderTest(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, ok, err := cache.Vehicle(ctx, "AOE Apex")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if !ok || v.Name != "AOE Apex" {
			t.Fatalf("lookup %d: unexpected result %+v", i, v)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one source hit, got %d", src.calls)
	}
}

func TestCacheExpiresWithTTL(t *testing.T) {
	cache, src, mr := newCacheUnderTest(t, time.Minute)
	ctx := context.Background()

	if _, _, err := cache.Vehicle(ctx, "AOE Volt"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, _, err := cache.Vehicle(ctx, "AOE Volt"); err != nil {
		t.Fatalf("lookup after expiry: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refetch after TTL, got %d source hits", src.calls)
	}
}

func TestCacheNegativeResult(t *testing.T) {
	cache, src, _ := newCacheUnderTest(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		v, ok, err := cache.Vehicle(ctx, "DeLorean")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if ok || v != nil {
			t.Fatalf("lookup %d: expected miss, got %+v", i, v)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected negative result cached, got %d source hits", src.calls)
	}
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	src := &countingSource{inner: NewStatic()}
	cache := NewCache(src, nil, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := cache.Vehicle(ctx, "AOE Aero"); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	if src.calls != 2 {
		t.Fatalf("expected passthrough without redis, got %d source hits", src.calls)
	}
}
