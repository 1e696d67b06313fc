//go:build integration

// Integration tests against a real Redis instance. Run with:
//
//	SFP_TEST_REDIS_ADDR=localhost:6379 go test -tags integration ./internal/filterinfo/redisregistry/...
package redisregistry

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

func TestAddCountListIntegration(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	defer client.Close()

	groupKey := "sfp_test_registry"
	defer client.Del(ctx, groupKey)

	r := New(client)
	if err := r.Add(ctx, groupKey, "0", 3); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(ctx, groupKey, "1", 1); err != nil {
		t.Fatalf("Add: %v", err)
	}

	count, err := r.Count(ctx, groupKey, "0")
	if err != nil || count != 3 {
		t.Fatalf("expected 3, got %d, %v", count, err)
	}

	entries, err := r.List(ctx, groupKey)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Code != "0" || entries[1].Code != "1" {
		t.Errorf("unexpected order: %+v", entries)
	}
}

func TestCountAbsentIntegration(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	defer client.Close()

	r := New(client)
	count, err := r.Count(ctx, "sfp_test_missing_group", "0")
	if err != nil || count != 0 {
		t.Fatalf("expected 0, nil, got %d, %v", count, err)
	}
}
