package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubStore struct {
	getFn    func(ctx context.Context, key string) ([]byte, bool, error)
	setFn    func(ctx context.Context, key string, value []byte) error
	deleteFn func(ctx context.Context, key string) error
}

func (s *stubStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.getFn == nil {
		return nil, false, errors.New("unexpected Get call")
	}
	return s.getFn(ctx, key)
}

func (s *stubStore) Set(ctx context.Context, key string, value []byte) error {
	if s.setFn == nil {
		return errors.New("unexpected Set call")
	}
	return s.setFn(ctx, key, value)
}

func (s *stubStore) Delete(ctx context.Context, key string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected Delete call")
	}
	return s.deleteFn(ctx, key)
}

func (s *stubStore) Ping(context.Context) error { return nil }

func TestCacheGetMissThenHit(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	var calls int
	cache := NewCache(&stubStore{
		getFn: func(ctx context.Context, key string) ([]byte, bool, error) {
			calls++
			if key != "board" {
				t.Fatalf("unexpected key: %s", key)
			}
			return []byte(`[]`), true, nil
		},
	}, client, "ns", time.Minute)

	data, found, err := cache.Get(ctx, "board")
	if err != nil || !found || string(data) != `[]` {
		t.Fatalf("get: %q found=%v err=%v", data, found, err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}
	if ttl := mr.TTL("cache:ns:board"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	data, found, err = cache.Get(ctx, "board")
	if err != nil || !found || string(data) != `[]` {
		t.Fatalf("cached get: %q found=%v err=%v", data, found, err)
	}
	if calls != 1 {
		t.Fatalf("expected cached get to avoid backend, calls=%d", calls)
	}
}

func TestCacheDoesNotStoreMisses(t *testing.T) {
	mr, client := newMiniredis(t)
	cache := NewCache(&stubStore{
		getFn: func(context.Context, string) ([]byte, bool, error) { return nil, false, nil },
	}, client, "ns", time.Minute)

	if _, found, err := cache.Get(context.Background(), "departments"); err != nil || found {
		t.Fatalf("expected miss, found=%v err=%v", found, err)
	}
	if mr.Exists("cache:ns:departments") {
		t.Fatalf("a missing key must not be cached")
	}
}

func TestCacheSetEvicts(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	backend := NewMemoryStore()
	cache := NewCache(backend, client, "ns", time.Minute)

	_ = backend.Set(ctx, "current_user", []byte(`{"id":"1"}`))
	if _, _, err := cache.Get(ctx, "current_user"); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if !mr.Exists("cache:ns:current_user") {
		t.Fatalf("expected value to be cached")
	}

	if err := cache.Set(ctx, "current_user", []byte(`{"id":"2"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mr.Exists("cache:ns:current_user") {
		t.Fatalf("expected cache eviction after set")
	}
	got, _, _ := cache.Get(ctx, "current_user")
	if string(got) != `{"id":"2"}` {
		t.Fatalf("stale value served: %s", got)
	}

	if err := cache.Delete(ctx, "current_user"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := cache.Get(ctx, "current_user"); found {
		t.Fatalf("deleted value still served")
	}
}

func TestCacheSetFailureKeepsCache(t *testing.T) {
	mr, client := newMiniredis(t)
	errBoom := errors.New("boom")
	cache := NewCache(&stubStore{
		setFn: func(context.Context, string, []byte) error { return errBoom },
	}, client, "ns", time.Minute)
	_ = mr.Set("cache:ns:board", "cached")

	if err := cache.Set(context.Background(), "board", []byte("new")); !errors.Is(err, errBoom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !mr.Exists("cache:ns:board") {
		t.Fatalf("cache must not be evicted when the write failed")
	}
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, client := newMiniredis(t)
	mr.Close()

	cache := NewCache(&stubStore{
		getFn: func(context.Context, string) ([]byte, bool, error) { return []byte("x"), true, nil },
		setFn: func(context.Context, string, []byte) error { return nil },
	}, client, "ns", time.Minute)

	data, found, err := cache.Get(context.Background(), "board")
	if err != nil || !found || string(data) != "x" {
		t.Fatalf("expected backend value, got %q found=%v err=%v", data, found, err)
	}
	if err := cache.Set(context.Background(), "board", []byte("y")); err != nil {
		t.Fatalf("set should ignore redis failure: %v", err)
	}
}

func TestCacheWithoutRedis(t *testing.T) {
	cache := NewCache(NewMemoryStore(), nil, "", 0)
	exerciseStore(t, cache)
}
