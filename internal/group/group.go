// Package group implements a filter group: the ordered, auto-expanding list
// of chunks backing one (appid, group-name) pair. Grounded on
// original_source/sgflt/src/bloom_group.rs's FilterGroup: an
// atomically-swappable chunk list (no per-chunk locks), cascade contain,
// tail-targeted insert with bounded retries, and adopt-or-mint coordination
// when the tail is full.
package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"sfp/internal/bitmap"
	"sfp/internal/callgroup"
	"sfp/internal/engineerr"
	"sfp/internal/expand"
	"sfp/internal/filter"
	"sfp/internal/filterinfo"
	"sfp/internal/logging"
	"sfp/internal/notify"
)

// Expander is the subset of *expand.Expander a group needs: loading the
// current chunk list and minting a new chunk when the tail fills.
type Expander interface {
	LoadFilterGroup(ctx context.Context, group string) ([]*filter.Chunk, error)
	ExpandChunk(ctx context.Context, group string, index int) (*filter.Chunk, error)
}

var _ Expander = (*expand.Expander)(nil)

// Config configures a Group.
type Config struct {
	Name     string
	TryMax   int
	Expander Expander
	Bitmap   bitmap.Store
	Registry filterinfo.Registry
	Notify   *notify.Signal
	Logger   *slog.Logger
}

// Group is one auto-expanding filter group. Safe for concurrent use: the
// chunk list is held behind an atomic pointer and swapped, never mutated in
// place, so readers never see a torn list and never block on a writer.
type Group struct {
	name     string
	tryMax   int
	expander Expander
	bitmap   bitmap.Store
	registry filterinfo.Registry
	notify   *notify.Signal
	logger   *slog.Logger

	list atomic.Pointer[[]*filter.Chunk]

	extendCalls callgroup.Group[string]
}

// New builds a Group with an empty chunk list. Call Load before first use
// to populate it from the registry's current state.
func New(cfg Config) *Group {
	tryMax := cfg.TryMax
	if tryMax <= 0 {
		tryMax = 3
	}
	g := &Group{
		name:     cfg.Name,
		tryMax:   tryMax,
		expander: cfg.Expander,
		bitmap:   cfg.Bitmap,
		registry: cfg.Registry,
		notify:   cfg.Notify,
		logger:   logging.Default(cfg.Logger).With("component", "group", "group", cfg.Name),
	}
	empty := []*filter.Chunk{}
	g.list.Store(&empty)
	return g
}

// Load populates the chunk list from the registry's current state. Call
// once after construction; safe to call again to force a resync.
func (g *Group) Load(ctx context.Context) error {
	chunks, err := g.expander.LoadFilterGroup(ctx, g.name)
	if err != nil {
		return fmt.Errorf("group %s: load: %w", g.name, err)
	}
	g.list.Store(&chunks)
	return nil
}

// snapshot returns the current chunk list. The returned slice must not be
// mutated — it is shared with any concurrent reader.
func (g *Group) snapshot() []*filter.Chunk {
	return *g.list.Load()
}

// ChunkCount returns the number of chunks currently in the group, for
// operator inspection.
func (g *Group) ChunkCount() int {
	return len(g.snapshot())
}

// Contain reports whether item is a member of any chunk in the group,
// iterating the snapshot in creation order and short-circuiting true on the
// first match.
func (g *Group) Contain(ctx context.Context, item []byte) (bool, error) {
	for _, c := range g.snapshot() {
		found, err := c.Contain(ctx, item)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// Insert adds item to the group's tail chunk, extending the group
// (adopting a concurrently-extended list, or minting a new chunk) and
// retrying whenever the tail turns out to be full. Gives up after TryMax
// attempts.
func (g *Group) Insert(ctx context.Context, item []byte) error {
	for attempt := 0; attempt < g.tryMax; attempt++ {
		chunks := g.snapshot()
		if len(chunks) == 0 {
			if err := g.TryExtend(ctx); err != nil {
				return err
			}
			continue
		}

		tail := chunks[len(chunks)-1]
		err := tail.Insert(ctx, item)
		if err == nil {
			return nil
		}

		var full *engineerr.ChunkFull
		if errors.As(err, &full) {
			if err := g.TryExtend(ctx); err != nil {
				return err
			}
			continue
		}
		return err
	}
	return &engineerr.RetryExhausted{TryMax: g.tryMax}
}

// TryExtend reconciles the group's chunk list with the remote registry: if
// another process already extended the group, this adopts that list;
// otherwise it mints and appends exactly one new chunk. Concurrent callers
// within this process collapse into a single in-flight call via callgroup,
// so a burst of goroutines hitting a full tail produces at most one mint.
// Call this only when the caller actually believes the group needs to grow
// (an empty list, or a tail that just reported full) — Refresh is the safe
// choice before a plain read.
func (g *Group) TryExtend(ctx context.Context) error {
	ch := g.extendCalls.DoChan(g.name, func() error {
		adopted, err := g.reconcile(ctx)
		if err != nil {
			return err
		}
		if adopted {
			return nil
		}
		return g.mint(ctx)
	})
	return <-ch
}

// Refresh adopts the registry's current chunk list if it differs from the
// cached snapshot, but never mints: it only catches up to structural growth
// a peer process has already committed. Grounded on try_extend's own adopt
// branch (see TryExtend) but split out so a read (contain, batch_contain)
// can pick up another process's extension without itself triggering one —
// minting on a read would grow the group for no key anyone is inserting.
func (g *Group) Refresh(ctx context.Context) error {
	_, err := g.reconcile(ctx)
	return err
}

// reconcile reloads the remote chunk list and adopts it if it differs from
// the cached snapshot, reporting whether it adopted.
func (g *Group) reconcile(ctx context.Context) (bool, error) {
	current := g.snapshot()

	remote, err := g.expander.LoadFilterGroup(ctx, g.name)
	if err != nil {
		return false, fmt.Errorf("group %s: reload during extend: %w", g.name, err)
	}

	if !sameChunkList(current, remote) {
		g.list.Store(&remote)
		g.logger.Debug("adopted remote chunk list", "chunks", len(remote))
		if g.notify != nil {
			g.notify.Notify()
		}
		return true, nil
	}
	return false, nil
}

// mint appends exactly one new chunk to the cached snapshot.
func (g *Group) mint(ctx context.Context) error {
	current := g.snapshot()

	next, err := g.expander.ExpandChunk(ctx, g.name, len(current))
	if err != nil {
		return err
	}

	grown := make([]*filter.Chunk, len(current), len(current)+1)
	copy(grown, current)
	grown = append(grown, next)
	g.list.Store(&grown)
	g.logger.Info("minted new chunk", "code", next.Code(), "capacity", next.Capacity())
	if g.notify != nil {
		g.notify.Notify()
	}
	return nil
}

// sameChunkList reports whether a and b name the same chunks in the same
// order, mirroring bloom_group.rs's skfs_eq (compared by code string).
func sameChunkList(a, b []*filter.Chunk) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Code() != b[i].Code() {
			return false
		}
	}
	return true
}

// BatchContain checks membership for many items in one pass, fetching each
// involved chunk's raw bitmap bytes exactly once (one MulGet round trip for
// the whole group) rather than one Get per item per chunk.
func (g *Group) BatchContain(ctx context.Context, items [][]byte) ([]bool, error) {
	chunks := g.snapshot()
	results := make([]bool, len(items))
	if len(chunks) == 0 {
		return results, nil
	}

	keys := make([]string, len(chunks))
	for i, c := range chunks {
		keys[i] = c.Key()
	}
	bufs, err := g.bitmap.MulGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	for i, item := range items {
		for _, c := range chunks {
			if c.ContainInBuf(bufs[c.Key()], item) {
				results[i] = true
				break
			}
		}
	}
	return results, nil
}

// BatchInsert adds many items to the group in one pass, routing each item to
// whichever chunk has room for it rather than pinning the whole batch to the
// tail that happened to be current when the call started: a batch that
// outgrows one chunk's capacity extends the group mid-batch and the
// remaining items land in the new tail, so one call can span as many chunks
// as it needs. total caches each touched chunk's registry count (one round
// trip per chunk touched, not per item); growth counts how many of this
// batch's items have been committed to each chunk so far; buf accumulates
// the probe bits each chunk needs OR'd in. Every chunk's bits are committed
// in a single MulSet before any registry count advances, and a chunk whose
// bitmap write fails has its registry increment skipped, so a transport
// failure never inflates the advisory count for bits that were never
// actually set.
func (g *Group) BatchInsert(ctx context.Context, items [][]byte) error {
	if len(items) == 0 {
		return nil
	}

	total := make(map[string]int64)
	growth := make(map[string]int64)
	buf := make(map[string]map[uint64]struct{})
	state := &batchExtendState{}

	for _, item := range items {
		if err := g.routeBatchItem(ctx, item, total, growth, buf, state); err != nil {
			return err
		}
	}

	return g.commitBatchInsert(ctx, growth, buf)
}

// batchExtendState tracks whether this BatchInsert call has already
// extended the group itself. Commits are deferred until after every item is
// routed (see BatchInsert), so a chunk this batch minted has no registry
// entry yet; reconciling against the registry again before that commit
// would see the batch's own cached list as ahead of the remote one and
// wrongly adopt the stale, shorter remote list, discarding the chunk just
// minted. Once this batch has extended the group once, later extensions in
// the same call mint directly instead of reconciling.
type batchExtendState struct {
	extended bool
}

// extendForBatch grows the group for one BatchInsert call: the first
// extension may adopt a peer's concurrent growth (same as TryExtend), but
// every subsequent one in the same call mints unconditionally, for the
// reason batchExtendState documents.
func (g *Group) extendForBatch(ctx context.Context, state *batchExtendState) error {
	if state.extended {
		return g.forceMint(ctx)
	}
	if err := g.TryExtend(ctx); err != nil {
		return err
	}
	state.extended = true
	return nil
}

// forceMint mints exactly one new chunk, collapsing concurrent callers
// through the same dedup TryExtend uses.
func (g *Group) forceMint(ctx context.Context) error {
	ch := g.extendCalls.DoChan(g.name, func() error {
		return g.mint(ctx)
	})
	return <-ch
}

// routeBatchItem finds a chunk with room for item, extending the group when
// every known chunk (counting both its registry-confirmed count and this
// batch's own pending growth against it) is at capacity, and merges item's
// probe bits into buf. Bounded by tryMax, same as a single Insert.
func (g *Group) routeBatchItem(ctx context.Context, item []byte, total, growth map[string]int64, buf map[string]map[uint64]struct{}, state *batchExtendState) error {
	for attempt := 0; attempt < g.tryMax; attempt++ {
		chunks := g.snapshot()
		if len(chunks) == 0 {
			if err := g.extendForBatch(ctx, state); err != nil {
				return err
			}
			continue
		}

		tail := chunks[len(chunks)-1]
		code := tail.Code()

		count, ok := total[code]
		if !ok {
			c, err := tail.Count(ctx)
			if err != nil {
				return err
			}
			count = c
			total[code] = count
		}

		if count+growth[code] >= tail.Capacity() {
			if err := g.extendForBatch(ctx, state); err != nil {
				return err
			}
			continue
		}

		set, ok := buf[code]
		if !ok {
			set = make(map[uint64]struct{})
			buf[code] = set
		}
		for _, idx := range tail.ProbeIndices(item) {
			set[idx] = struct{}{}
		}
		growth[code]++
		return nil
	}
	return &engineerr.RetryExhausted{TryMax: g.tryMax}
}

// commitBatchInsert flushes buf to the bitmap store in one MulSet call
// covering every touched chunk, then advances each touched chunk's registry
// count by its growth — skipping chunks whose entry no longer exists in the
// current snapshot (a concurrent extend elsewhere never removes chunks, so
// this only guards against a future reshaping of the list).
func (g *Group) commitBatchInsert(ctx context.Context, growth map[string]int64, buf map[string]map[uint64]struct{}) error {
	chunks := g.snapshot()
	byCode := make(map[string]*filter.Chunk, len(chunks))
	for _, c := range chunks {
		byCode[c.Code()] = c
	}

	sets := make(map[string][]uint64, len(buf))
	for code, set := range buf {
		offsets := make([]uint64, 0, len(set))
		for idx := range set {
			offsets = append(offsets, idx)
		}
		sets[code] = offsets
	}
	if len(sets) > 0 {
		if err := g.bitmap.MulSet(ctx, sets); err != nil {
			return err
		}
	}

	for code, delta := range growth {
		c, ok := byCode[code]
		if !ok {
			continue
		}
		if err := g.registry.Add(ctx, c.RegistryKey(), code, delta); err != nil {
			g.logger.Warn("registry increment failed after batch insert", "error", err, "code", code)
		}
	}
	return nil
}
