//go:build integration

// Integration tests against a real Redis instance. Run with:
//
//	SFP_TEST_REDIS_ADDR=localhost:6379 go test -tags integration ./internal/bitmap/redisbitmap/...
package redisbitmap

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	addr := os.Getenv("SFP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SFP_TEST_REDIS_ADDR not set, skipping redis integration test")
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

func TestSetGetIntegration(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	defer client.Close()

	key := "sfp_test_setget"
	defer client.Del(ctx, key)

	s := New(client)
	if got, err := s.Get(ctx, key, 3); err != nil || got {
		t.Fatalf("expected unset bit, got %v, %v", got, err)
	}
	if err := s.Set(ctx, key, 3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, err := s.Get(ctx, key, 3); err != nil || !got {
		t.Fatalf("expected set bit, got %v, %v", got, err)
	}
}

func TestMulSetMulGetIntegration(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	defer client.Close()

	keyA, keyB := "sfp_test_a", "sfp_test_b"
	defer client.Del(ctx, keyA, keyB)

	s := New(client)
	err := s.MulSet(ctx, map[string][]uint64{
		keyA: {1, 9},
		keyB: {0},
	})
	if err != nil {
		t.Fatalf("MulSet: %v", err)
	}

	bufs, err := s.MulGet(ctx, []string{keyA, keyB, "sfp_test_missing"})
	if err != nil {
		t.Fatalf("MulGet: %v", err)
	}
	if len(bufs["sfp_test_missing"]) != 0 {
		t.Errorf("expected empty buffer for missing key, got %d bytes", len(bufs["sfp_test_missing"]))
	}
	if len(bufs[keyA]) == 0 {
		t.Error("expected non-empty buffer for keyA")
	}
}
