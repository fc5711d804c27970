package tiered_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/ModForge/internal/adapter/tiered"
)

// memCache is a simple in-memory cache for testing. It records the TTL of
// the last Set per key so L1 clamping is observable.
type memCache struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestTiered_L1Hit(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l1.data["profile"] = []byte("cached")

	val, found, err := c.Get(context.Background(), "profile")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "cached" {
		t.Fatalf("expected L1 hit, got found=%v val=%s", found, val)
	}
}

func TestTiered_L2HitWithBackfill(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l2.data["answers"] = []byte("shared")

	val, found, err := c.Get(context.Background(), "answers")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "shared" {
		t.Fatalf("expected L2 hit, got found=%v val=%s", found, val)
	}

	if string(l1.data["answers"]) != "shared" {
		t.Fatal("expected L1 backfill")
	}
	if l1.ttls["answers"] != 5*time.Minute {
		t.Fatalf("backfill should use the L1 expiry, got %v", l1.ttls["answers"])
	}
}

func TestTiered_Miss(t *testing.T) {
	c := tiered.New(newMemCache(), newMemCache(), 5*time.Minute)

	_, found, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestTiered_SetBothClampsL1(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	if err := c.Set(context.Background(), "trust", []byte("v"), 7*24*time.Hour); err != nil {
		t.Fatal(err)
	}

	if _, ok := l1.data["trust"]; !ok {
		t.Fatal("expected key in L1")
	}
	if _, ok := l2.data["trust"]; !ok {
		t.Fatal("expected key in L2")
	}
	if l1.ttls["trust"] != 5*time.Minute {
		t.Fatalf("L1 TTL should be clamped, got %v", l1.ttls["trust"])
	}
	if l2.ttls["trust"] != 7*24*time.Hour {
		t.Fatalf("L2 TTL should be the full TTL, got %v", l2.ttls["trust"])
	}
}

func TestTiered_DeleteBoth(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l1.data["k"] = []byte("v")
	l2.data["k"] = []byte("v")

	if err := c.Delete(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["k"]; ok {
		t.Fatal("expected delete from L1")
	}
	if _, ok := l2.data["k"]; ok {
		t.Fatal("expected delete from L2")
	}
}
