package storage

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// exerciseStore checks the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, found, err := s.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("missing key: found=%v err=%v", found, err)
	}
	if err := s.Set(ctx, "users", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found, err := s.Get(ctx, "users")
	if err != nil || !found || string(got) != `[{"id":"1"}]` {
		t.Fatalf("get: %q found=%v err=%v", got, found, err)
	}
	if err := s.Set(ctx, "users", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _, _ := s.Get(ctx, "users"); string(got) != `[]` {
		t.Fatalf("overwrite not visible: %q", got)
	}
	if err := s.Delete(ctx, "users"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, "users"); found {
		t.Fatalf("expected key to be gone after delete")
	}
	if err := s.Delete(ctx, "users"); err != nil {
		t.Fatalf("deleting a missing key should succeed: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	value := []byte("abc")
	_ = s.Set(ctx, "k", value)
	value[0] = 'z'
	got, _, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("store kept a reference to the caller's slice: %q", got)
	}
	got[1] = 'z'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("store handed out its internal slice: %q", again)
	}
}

func TestRedisStore(t *testing.T) {
	_, client := newMiniredis(t)
	s, err := NewRedisStore(client, "board-test")
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	exerciseStore(t, s)
}

func TestRedisStoreNamespacesKeys(t *testing.T) {
	mr, client := newMiniredis(t)
	s, _ := NewRedisStore(client, "ns")
	if err := s.Set(context.Background(), "current_user", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := mr.Get("ns:current_user")
	if err != nil || got != `{"id":"1"}` {
		t.Fatalf("unexpected raw value %q err=%v", got, err)
	}
	if _, err := NewRedisStore(client, ""); err != ErrNoNamespace {
		t.Fatalf("expected ErrNoNamespace, got %v", err)
	}
}

func TestParseRedisOptions(t *testing.T) {
	opts, err := ParseRedisOptions("redis://:pw@localhost:6379/2")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected url options: %+v", opts)
	}

	opts, err = ParseRedisOptions("cache.example.net:6380,password=secret,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("parse connection string: %v", err)
	}
	if opts.Addr != "cache.example.net:6380" || opts.Password != "secret" || opts.TLSConfig == nil {
		t.Fatalf("unexpected connection string options: %+v", opts)
	}

	opts, _ = ParseRedisOptions("localhost:6379,ssl=false")
	if opts.TLSConfig != nil {
		t.Fatalf("tls should stay off")
	}

	if _, err := ParseRedisOptions(""); err == nil {
		t.Fatalf("expected error for empty connection string")
	}
}

func TestValueEntityRoundTrip(t *testing.T) {
	payload, err := encodeValueEntity("taskboard", "board", []byte(`[{"id":"backlog"}]`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	value, err := decodeValueEntity(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(value) != `[{"id":"backlog"}]` {
		t.Fatalf("unexpected value: %s", value)
	}

	data := []byte(`{"PartitionKey":"taskboard","RowKey":"current_user","Value":"{\"id\":\"1\"}"}`)
	value, err = decodeValueEntity(data)
	if err != nil || string(value) != `{"id":"1"}` {
		t.Fatalf("decode stored entity: %q err=%v", value, err)
	}
}
