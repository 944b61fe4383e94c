package practice

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

type countingRepo struct {
	*MemoryStore
	gets int
}

func (c *countingRepo) Get(ctx context.Context, id string) (*Practice, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, id)
}

func TestCachedRepositoryReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backing := &countingRepo{MemoryStore: NewMemoryStore(&Practice{ID: "p1", Name: "Smile", Active: true})}
	cache := NewCachedRepository(backing, client, time.Minute, logging.Default())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := cache.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if p.Name != "Smile" {
			t.Fatalf("unexpected practice %+v", p)
		}
	}
	if backing.gets != 1 {
		t.Fatalf("expected a single backing read, got %d", backing.gets)
	}
	if !mr.Exists("practice:config:p1") {
		t.Fatalf("expected cache key to be written")
	}
	if ttl := mr.TTL("practice:config:p1"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %s", ttl)
	}

	if err := cache.Invalidate(ctx, "p1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cache.Get(ctx, "p1"); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if backing.gets != 2 {
		t.Fatalf("expected refetch after invalidate, got %d", backing.gets)
	}
}

func TestCachedRepositoryMissPassesThroughNotFound(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCachedRepository(NewMemoryStore(), client, 0, nil)

	if _, err := cache.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("practice:config:nope") {
		t.Fatalf("not-found should not be cached")
	}
}

func TestCachedRepositorySurvivesRedisOutage(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	cache := NewCachedRepository(NewMemoryStore(&Practice{ID: "p1"}), client, time.Minute, nil)

	if _, err := cache.Get(context.Background(), "p1"); err != nil {
		t.Fatalf("expected fallback to backing store, got %v", err)
	}
}
