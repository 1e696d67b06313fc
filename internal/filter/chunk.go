// Package filter implements a single Bloom-filter chunk: the bit array size
// and probe count derived from its capacity and target false-positive rate,
// advisory fullness tracked through a registry, and checked/set against a
// remote bitmap store. Grounded on
// original_source/sgflt/src/bloom_filter.rs's BasicBloomFilter.
package filter

import (
	"context"
	"log/slog"

	"sfp/internal/bitmap"
	"sfp/internal/chunkkey"
	"sfp/internal/engineerr"
	"sfp/internal/filterinfo"
	"sfp/internal/logging"
)

// Chunk is one fixed-capacity Bloom filter. Its code is the full chunk key
// (see chunkkey.ChunkKey) and serves three roles at once, mirroring
// original_source/sgflt/src/bloom_filter.rs and bloom_expand_strategy.rs: it
// addresses the chunk's bits in the bitmap store, it is the field name the
// registry tracks its count under, and it seeds the second hash of the
// chunk's hash pair (the first hash is seeded by the group name alone and is
// shared by every chunk of the group).
type Chunk struct {
	group       string
	code        string
	registryKey string
	capacity    int64
	m           uint64
	k           int
	hashers     chunkkey.Hashers

	bitmap   bitmap.Store
	registry filterinfo.Registry
	logger   *slog.Logger
}

// New builds a chunk sized for capacity items at fpRate false positives,
// identified by code (its full chunk key) and tracked under registryKey
// (its group's registry key) in the registry.
func New(group, code, registryKey string, capacity int64, fpRate float64, bm bitmap.Store, reg filterinfo.Registry, logger *slog.Logger) *Chunk {
	return &Chunk{
		group:       group,
		code:        code,
		registryKey: registryKey,
		capacity:    capacity,
		m:           OptimalM(capacity, fpRate),
		k:           OptimalK(fpRate),
		hashers:     chunkkey.NewHashers(group, code),
		bitmap:      bm,
		registry:    reg,
		logger:      logging.Default(logger).With("component", "filter", "group", group, "code", code),
	}
}

// Code returns the chunk's full key, unique within its group.
func (c *Chunk) Code() string { return c.code }

// Key returns the bitmap store key this chunk's bits live under (identical
// to Code — the chunk's full key addresses both the bitmap and the registry
// field).
func (c *Chunk) Key() string { return c.code }

// RegistryKey returns the group-level key this chunk's count is tracked
// under in the registry.
func (c *Chunk) RegistryKey() string { return c.registryKey }

// M returns the bit-array size.
func (c *Chunk) M() uint64 { return c.m }

// K returns the probe count.
func (c *Chunk) K() int { return c.k }

// Capacity returns the item count this chunk is sized for.
func (c *Chunk) Capacity() int64 { return c.capacity }

// ProbeIndices returns the k bit indices item hashes to in this chunk.
func (c *Chunk) ProbeIndices(item []byte) []uint64 {
	return c.hashers.ProbeIndices(item, c.k, c.m)
}

// Count returns the chunk's registry-tracked item count.
func (c *Chunk) Count(ctx context.Context) (int64, error) {
	return c.registry.Count(ctx, c.registryKey, c.code)
}

// IsFull reports whether the chunk's registry-tracked item count has
// reached capacity. Advisory only: the check and any subsequent insert are
// not transactional, so concurrent inserts can race past capacity slightly,
// matching the accepted imprecision of the original design.
func (c *Chunk) IsFull(ctx context.Context) (bool, error) {
	count, err := c.Count(ctx)
	if err != nil {
		return false, err
	}
	return count >= c.capacity, nil
}

// Insert adds item to the chunk: checks fullness, sets all k probe bits,
// then increments the registry count. A registry-increment failure is
// logged and swallowed — the bits are already committed, so the insert
// itself succeeded; only the advisory count drifts.
func (c *Chunk) Insert(ctx context.Context, item []byte) error {
	full, err := c.IsFull(ctx)
	if err != nil {
		return err
	}
	if full {
		return &engineerr.ChunkFull{Capacity: c.capacity}
	}

	for _, idx := range c.ProbeIndices(item) {
		if err := c.bitmap.Set(ctx, c.code, idx); err != nil {
			return err
		}
	}

	if err := c.registry.Add(ctx, c.registryKey, c.code, 1); err != nil {
		c.logger.Warn("registry increment failed after insert", "error", err)
	}
	return nil
}

// Contain reports whether item's k probe bits are all set, short-circuiting
// on the first unset bit.
func (c *Chunk) Contain(ctx context.Context, item []byte) (bool, error) {
	for _, idx := range c.ProbeIndices(item) {
		set, err := c.bitmap.Get(ctx, c.code, idx)
		if err != nil {
			return false, err
		}
		if !set {
			return false, nil
		}
	}
	return true, nil
}

// ContainInBuf checks item's membership against an already-fetched raw
// bitmap buffer, used by the batching pipeline so a multi-key contain only
// pays for one MulGet round trip per involved chunk.
func (c *Chunk) ContainInBuf(buf []byte, item []byte) bool {
	for _, idx := range c.ProbeIndices(item) {
		byteIdx := idx / 8
		if byteIdx >= uint64(len(buf)) {
			return false
		}
		if buf[byteIdx]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}
