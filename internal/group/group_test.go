package group

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"sfp/internal/bitmap/memstore"
	"sfp/internal/engineerr"
	"sfp/internal/expand"
	"sfp/internal/filter"
	"sfp/internal/filterinfo/memregistry"
)

func newTestGroup(t *testing.T, ladder expand.Ladder) (*Group, *memstore.Store, *memregistry.Registry) {
	t.Helper()
	bm := memstore.New()
	reg := memregistry.New()
	exp := expand.New(expand.Config{
		AppID:    "app1",
		Strategy: ladder,
		Bitmap:   bm,
		Registry: reg,
		NowFunc:  func() time.Time { return time.Unix(10000, 0) },
	})
	g := New(Config{
		Name:     "users",
		TryMax:   5,
		Expander: exp,
		Bitmap:   bm,
		Registry: reg,
	})
	if err := g.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return g, bm, reg
}

func TestInsertMintsFirstChunkWhenEmpty(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGroup(t, expand.Ladder{2, 1000})

	if err := g.Insert(ctx, []byte("alice@example.com")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	found, err := g.Contain(ctx, []byte("alice@example.com"))
	if err != nil {
		t.Fatalf("Contain: %v", err)
	}
	if !found {
		t.Error("expected inserted item to be contained")
	}
}

func TestInsertExtendsWhenTailFull(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGroup(t, expand.Ladder{1, 1000})

	if err := g.Insert(ctx, []byte("one")); err != nil {
		t.Fatalf("Insert(one): %v", err)
	}
	if err := g.Insert(ctx, []byte("two")); err != nil {
		t.Fatalf("Insert(two): %v", err)
	}

	if got := len(g.snapshot()); got != 2 {
		t.Fatalf("expected group to have extended to 2 chunks, got %d", got)
	}
	for _, item := range []string{"one", "two"} {
		found, err := g.Contain(ctx, []byte(item))
		if err != nil || !found {
			t.Errorf("expected %s contained, got %v, %v", item, found, err)
		}
	}
}

func TestContainCascadesAcrossChunks(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGroup(t, expand.Ladder{1, 1, 1, 1000})

	items := []string{"a", "b", "c"}
	for _, item := range items {
		if err := g.Insert(ctx, []byte(item)); err != nil {
			t.Fatalf("Insert(%s): %v", item, err)
		}
	}
	if got := len(g.snapshot()); got != 3 {
		t.Fatalf("expected 3 chunks, got %d", got)
	}
	for _, item := range items {
		found, err := g.Contain(ctx, []byte(item))
		if err != nil || !found {
			t.Errorf("expected %s contained, got %v, %v", item, found, err)
		}
	}
}

func TestInsertSurfacesLadderExhaustion(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGroup(t, expand.Ladder{1})

	if err := g.Insert(ctx, []byte("one")); err != nil {
		t.Fatalf("Insert(one): %v", err)
	}
	err := g.Insert(ctx, []byte("two"))
	var exhausted *engineerr.LadderExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected LadderExhausted to surface (wrapped or not), got %v", err)
	}
}

func TestBatchContainMatchesSingleContain(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGroup(t, expand.Ladder{1000})

	items := [][]byte{[]byte("x"), []byte("y"), []byte("z")}
	for _, item := range items {
		if err := g.Insert(ctx, item); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	results, err := g.BatchContain(ctx, append(items, []byte("never-inserted")))
	if err != nil {
		t.Fatalf("BatchContain: %v", err)
	}
	for i, item := range items {
		if !results[i] {
			t.Errorf("expected item %s contained in batch result", item)
		}
	}
}

func TestBatchContainEmptyGroup(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGroup(t, expand.Ladder{1000})

	results, err := g.BatchContain(ctx, [][]byte{[]byte("x")})
	if err != nil {
		t.Fatalf("BatchContain: %v", err)
	}
	if results[0] {
		t.Error("expected false for item in an empty group")
	}
}

func TestBatchInsertThenBatchContain(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGroup(t, expand.Ladder{1000})

	items := [][]byte{[]byte("p"), []byte("q"), []byte("r")}
	if err := g.BatchInsert(ctx, items); err != nil {
		t.Fatalf("BatchInsert: %v", err)
	}

	results, err := g.BatchContain(ctx, items)
	if err != nil {
		t.Fatalf("BatchContain: %v", err)
	}
	for i, item := range items {
		if !results[i] {
			t.Errorf("expected item %s contained after batch insert", item)
		}
	}
}

func TestBatchInsertExtendsWhenTailFull(t *testing.T) {
	ctx := context.Background()
	g, _, reg := newTestGroup(t, expand.Ladder{1, 1000})

	if err := g.BatchInsert(ctx, [][]byte{[]byte("first")}); err != nil {
		t.Fatalf("BatchInsert 1: %v", err)
	}
	if err := g.BatchInsert(ctx, [][]byte{[]byte("second"), []byte("third")}); err != nil {
		t.Fatalf("BatchInsert 2: %v", err)
	}

	if got := len(g.snapshot()); got != 2 {
		t.Fatalf("expected group to have extended to 2 chunks, got %d", got)
	}

	tail := g.snapshot()[1]
	count, err := reg.Count(ctx, tail.RegistryKey(), tail.Code())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected tail chunk count 2, got %d", count)
	}
}

// TestBatchInsertSingleCallSpansMultipleChunks covers a batch that outgrows
// one chunk's capacity within a single BatchInsert call (as opposed to
// TestBatchInsertExtendsWhenTailFull's two separate, individually
// undersized calls): 200 items into a Fixed(100) group must land in at
// least two chunks, with every item still landing somewhere.
func TestBatchInsertSingleCallSpansMultipleChunks(t *testing.T) {
	ctx := context.Background()
	bm := memstore.New()
	reg := memregistry.New()
	exp := expand.New(expand.Config{
		AppID:    "app1",
		Strategy: expand.Fixed(100),
		Bitmap:   bm,
		Registry: reg,
		NowFunc:  func() time.Time { return time.Unix(10000, 0) },
	})
	g := New(Config{
		Name:     "users",
		TryMax:   10,
		Expander: exp,
		Bitmap:   bm,
		Registry: reg,
	})
	if err := g.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	const n = 200
	items := make([][]byte, n)
	for i := range items {
		items[i] = []byte(fmt.Sprintf("key_%d", i))
	}
	if err := g.BatchInsert(ctx, items); err != nil {
		t.Fatalf("BatchInsert: %v", err)
	}

	chunks := g.snapshot()
	if len(chunks) < 2 {
		t.Fatalf("expected batch to span at least 2 chunks, got %d", len(chunks))
	}

	var total int64
	for _, c := range chunks {
		count, err := reg.Count(ctx, c.RegistryKey(), c.Code())
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if count > c.Capacity() {
			t.Errorf("chunk %s count %d exceeds capacity %d", c.Code(), count, c.Capacity())
		}
		total += count
	}
	if total != n {
		t.Errorf("expected registry counts to sum to %d, got %d", n, total)
	}

	results, err := g.BatchContain(ctx, items)
	if err != nil {
		t.Fatalf("BatchContain: %v", err)
	}
	for i, found := range results {
		if !found {
			t.Errorf("expected %s contained after batch insert", items[i])
		}
	}
}

// gatedExpander delays its single in-flight LoadFilterGroup call (the first
// one to win callgroup's dedup race) until release is closed. Every other
// concurrent TryExtend caller arrives while that one call is still
// registered as in-flight, so they join its result instead of starting
// their own — callgroup guarantees at most one fn executes per key at a
// time; this just widens the window long enough to prove it.
type gatedExpander struct {
	inner   Expander
	release chan struct{}
	armed   *int32
}

func (g *gatedExpander) LoadFilterGroup(ctx context.Context, name string) ([]*filter.Chunk, error) {
	if atomic.LoadInt32(g.armed) != 0 {
		<-g.release
	}
	return g.inner.LoadFilterGroup(ctx, name)
}

func (g *gatedExpander) ExpandChunk(ctx context.Context, name string, index int) (*filter.Chunk, error) {
	return g.inner.ExpandChunk(ctx, name, index)
}

func TestConcurrentExtendCollapsesToOneMint(t *testing.T) {
	ctx := context.Background()
	bm := memstore.New()
	reg := memregistry.New()
	inner := expand.New(expand.Config{
		AppID:    "app1",
		Strategy: expand.Ladder{1, 1000, 1000, 1000},
		Bitmap:   bm,
		Registry: reg,
		NowFunc:  func() time.Time { return time.Unix(10000, 0) },
	})

	var armed int32
	gated := &gatedExpander{inner: inner, release: make(chan struct{}), armed: &armed}

	g := New(Config{
		Name:     "users",
		TryMax:   5,
		Expander: gated,
		Bitmap:   bm,
		Registry: reg,
	})
	if err := g.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := g.Insert(ctx, []byte("seed")); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	atomic.StoreInt32(&armed, 1)

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errs <- g.TryExtend(ctx)
		}()
	}

	// Give every goroutine a chance to reach callgroup.DoChan and join the
	// single in-flight call before it's allowed to complete.
	time.Sleep(100 * time.Millisecond)
	close(gated.release)

	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("TryExtend: %v", err)
		}
	}

	if got := len(g.snapshot()); got != 2 {
		t.Errorf("expected exactly one net extension despite %d concurrent callers, got %d chunks", n, got)
	}
}
