package pool

import (
	"context"
	"fmt"
	"testing"

	"sfp/internal/bitmap/memstore"
	"sfp/internal/expand"
	"sfp/internal/filterinfo/memregistry"
)

// These scenarios exercise the pool end to end against in-memory bitmap and
// registry fakes, covering the engine's core correctness properties without
// a real remote store: no false negatives, bounded growth under load,
// order-independent membership, and single-insert/batch-insert equivalence.

func TestScenarioNoFalseNegativesUnderGrowth(t *testing.T) {
	ctx := context.Background()
	p := New(Config{
		Bitmap:   memstore.New(),
		Registry: memregistry.New(),
		Settings: staticSettings{settings: AppSettings{
			FPRate:   0.001,
			Strategy: expand.Ladder{10, 10, 10, 10, 10, 10, 10, 10},
			TryMax:   10,
		}},
	})

	const n = 60
	inserted := make([][]byte, n)
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("user-%d@example.com", i))
		inserted[i] = key
		if err := p.Insert(ctx, "app1", "users", key); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i, key := range inserted {
		found, err := p.Contain(ctx, "app1", "users", key)
		if err != nil {
			t.Fatalf("Contain(%d): %v", i, err)
		}
		if !found {
			t.Errorf("false negative for inserted key %s", key)
		}
	}
}

func TestScenarioGroupGrowsAcrossMultipleChunks(t *testing.T) {
	ctx := context.Background()
	p := New(Config{
		Bitmap:   memstore.New(),
		Registry: memregistry.New(),
		Settings: staticSettings{settings: AppSettings{
			FPRate:   0.001,
			Strategy: expand.Ladder{5, 5, 5, 5, 5, 5},
			TryMax:   10,
		}},
	})

	for i := 0; i < 25; i++ {
		key := []byte(fmt.Sprintf("k-%d", i))
		if err := p.Insert(ctx, "app1", "users", key); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	count, err := p.ChunkCount(ctx, "app1", "users")
	if err != nil {
		t.Fatalf("ChunkCount: %v", err)
	}
	if count < 5 {
		t.Errorf("expected group to have grown to at least 5 chunks, got %d chunks", count)
	}
}

func TestScenarioBatchInsertEquivalentToSingleInserts(t *testing.T) {
	ctx := context.Background()
	single := New(Config{
		Bitmap:   memstore.New(),
		Registry: memregistry.New(),
		Settings: staticSettings{settings: AppSettings{
			FPRate:   0.001,
			Strategy: expand.Ladder{1000},
			TryMax:   10,
		}},
	})
	batch := New(Config{
		Bitmap:   memstore.New(),
		Registry: memregistry.New(),
		Settings: staticSettings{settings: AppSettings{
			FPRate:   0.001,
			Strategy: expand.Ladder{1000},
			TryMax:   10,
		}},
	})

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	for _, key := range keys {
		if err := single.Insert(ctx, "app1", "users", key); err != nil {
			t.Fatalf("single Insert: %v", err)
		}
	}
	if err := batch.BatchInsert(ctx, "app1", "users", keys); err != nil {
		t.Fatalf("BatchInsert: %v", err)
	}

	for _, key := range keys {
		s, err := single.Contain(ctx, "app1", "users", key)
		if err != nil {
			t.Fatalf("single Contain: %v", err)
		}
		b, err := batch.Contain(ctx, "app1", "users", key)
		if err != nil {
			t.Fatalf("batch Contain: %v", err)
		}
		if s != b {
			t.Errorf("single/batch disagreement for %s: single=%v batch=%v", key, s, b)
		}
		if !s {
			t.Errorf("expected %s contained by both paths", key)
		}
	}
}

// TestScenarioCrossProcessContainSeesPeerGrowth pins down §8 property 1
// against two independently-cached pools sharing one remote store — the
// shape of two API replicas, or the CLI talking to the same backend a
// running server does. Each pool's Group handle is cached for the life of
// the process, so without a refresh before every dispatch, a chunk a peer
// minted and inserted into would never appear in this process's cached
// list and contain would report a false negative forever, not just until
// the next cache rebuild.
func TestScenarioCrossProcessContainSeesPeerGrowth(t *testing.T) {
	ctx := context.Background()
	bm := memstore.New()
	reg := memregistry.New()
	settings := staticSettings{settings: AppSettings{
		FPRate:   0.001,
		Strategy: expand.Ladder{2, 2, 2, 2, 2},
		TryMax:   10,
	}}

	writer := New(Config{Bitmap: bm, Registry: reg, Settings: settings})
	reader := New(Config{Bitmap: bm, Registry: reg, Settings: settings})

	// Prime both pools' caches on the group while it's still a single chunk.
	if err := writer.Insert(ctx, "app1", "users", []byte("seed")); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	if _, err := reader.Contain(ctx, "app1", "users", []byte("seed")); err != nil {
		t.Fatalf("prime reader cache: %v", err)
	}

	// Grow the group past its first rung on the writer only.
	for i := 0; i < 5; i++ {
		key := []byte(fmt.Sprintf("writer-key-%d", i))
		if err := writer.Insert(ctx, "app1", "users", key); err != nil {
			t.Fatalf("writer Insert(%d): %v", i, err)
		}
	}

	found, err := reader.Contain(ctx, "app1", "users", []byte("writer-key-4"))
	if err != nil {
		t.Fatalf("reader Contain: %v", err)
	}
	if !found {
		t.Error("reader's stale cached handle produced a false negative for a key a peer inserted into a chunk it hadn't seen yet")
	}
}

func TestScenarioContainOrderIndependent(t *testing.T) {
	ctx := context.Background()
	p := New(Config{
		Bitmap:   memstore.New(),
		Registry: memregistry.New(),
		Settings: staticSettings{settings: AppSettings{
			FPRate:   0.001,
			Strategy: expand.Ladder{3, 3, 3, 3},
			TryMax:   10,
		}},
	})

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}
	for _, key := range keys {
		if err := p.Insert(ctx, "app1", "users", key); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	forward, err := p.BatchContain(ctx, "app1", "users", keys)
	if err != nil {
		t.Fatalf("BatchContain forward: %v", err)
	}
	reversed := make([][]byte, len(keys))
	for i, key := range keys {
		reversed[len(keys)-1-i] = key
	}
	backward, err := p.BatchContain(ctx, "app1", "users", reversed)
	if err != nil {
		t.Fatalf("BatchContain backward: %v", err)
	}
	for i := range keys {
		if forward[i] != backward[len(keys)-1-i] {
			t.Errorf("membership differs by query order for %s", keys[i])
		}
	}
}
