package memstore

import (
	"context"
	"testing"
)

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	if got, err := s.Get(ctx, "k", 5); err != nil || got {
		t.Fatalf("expected unset bit on empty key, got %v, %v", got, err)
	}
	if err := s.Set(ctx, "k", 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k", 5)
	if err != nil || !got {
		t.Fatalf("expected set bit, got %v, %v", got, err)
	}
	if got, _ := s.Get(ctx, "k", 6); got {
		t.Error("expected neighboring bit unset")
	}
}

func TestMulSetMulGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.MulSet(ctx, map[string][]uint64{
		"a": {1, 10, 100},
		"b": {0},
	})
	if err != nil {
		t.Fatalf("MulSet: %v", err)
	}

	for _, off := range []uint64{1, 10, 100} {
		got, err := s.Get(ctx, "a", off)
		if err != nil || !got {
			t.Errorf("expected bit %d set in a, got %v, %v", off, got, err)
		}
	}

	bufs, err := s.MulGet(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("MulGet: %v", err)
	}
	if len(bufs["missing"]) != 0 {
		t.Errorf("expected empty buffer for missing key, got %d bytes", len(bufs["missing"]))
	}
	if len(bufs["a"]) == 0 {
		t.Error("expected non-empty buffer for a")
	}
}

func TestMulGetDoesNotAliasInternalState(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "k", 0)

	bufs, err := s.MulGet(ctx, []string{"k"})
	if err != nil {
		t.Fatalf("MulGet: %v", err)
	}
	bufs["k"][0] = 0xFF

	got, err := s.Get(ctx, "k", 1)
	if err != nil || got {
		t.Error("mutating MulGet result leaked into store state")
	}
}
