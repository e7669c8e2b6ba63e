package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"verify-platform/internal/consensus"
	"verify-platform/internal/source"
	"verify-platform/pkg/config"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	c := &clock{t: t0}
	s := NewMemoryStore(10, 60*time.Second).WithClock(c.now)

	want := &consensus.Result{ID: "r1", FinalVerdict: source.VerdictTrue}
	if err := s.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c.set(t0.Add(59 * time.Second))
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get at t0+59s: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("Get should return the stored pointer")
	}

	c.set(t0.Add(61 * time.Second))
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("Get at t0+61s should miss")
	}
	if n, _ := s.Len(ctx); n != 0 {
		t.Errorf("expired entry should be evicted on read, len=%d", n)
	}
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, time.Hour)

	_ = s.Set(ctx, "a", &consensus.Result{ID: "a"})
	_ = s.Set(ctx, "b", &consensus.Result{ID: "b"})
	if _, ok, _ := s.Get(ctx, "a"); !ok {
		t.Fatal("a should be present")
	}
	_ = s.Set(ctx, "c", &consensus.Result{ID: "c"})

	if _, ok, _ := s.Get(ctx, "b"); ok {
		t.Error("b is least recently used and should be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok, _ := s.Get(ctx, k); !ok {
			t.Errorf("%s should be present", k)
		}
	}
	if n, _ := s.Len(ctx); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestMemoryStore_ReplaceAndHitCount(t *testing.T) {
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	c := &clock{t: t0}
	s := NewMemoryStore(0, time.Minute).WithClock(c.now)

	_ = s.Set(ctx, "k", &consensus.Result{ID: "old"})
	_, _, _ = s.Get(ctx, "k")
	_, _, _ = s.Get(ctx, "k")
	e, ok := s.Peek("k")
	if !ok || e.HitCount != 2 {
		t.Fatalf("Peek: ok=%v hits=%d", ok, e.HitCount)
	}

	c.set(t0.Add(50 * time.Second))
	_ = s.Set(ctx, "k", &consensus.Result{ID: "new"})
	e, _ = s.Peek("k")
	if e.Result.ID != "new" || e.HitCount != 0 || !e.CreatedAt.Equal(t0.Add(50*time.Second)) {
		t.Errorf("refresh should replace the entry: %+v", e)
	}

	_ = s.Delete(ctx, "k")
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("Get after Delete should miss")
	}
}

func TestNewCache(t *testing.T) {
	s, err := NewCache(config.CacheConfig{Type: "memory", MaxEntries: 5, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}
	if _, err := NewCache(config.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("unsupported type should error")
	}
}
