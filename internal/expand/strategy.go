// Package expand implements the chunk-sizing and chunk-minting policy a
// filter group grows by. Grounded on
// original_source/sgflt/src/bloom_expand_strategy.rs's Strategy enum and
// BloomExpandStrategy, and on the teacher's internal/chunk/rotation.go for
// the Go shape of a composable, interface-based policy (constructor +
// narrow interface, rather than a closed enum).
package expand

import (
	"context"
	"fmt"
	"time"

	"sfp/internal/bitmap"
	"sfp/internal/chunkkey"
	"sfp/internal/engineerr"
	"sfp/internal/filter"
	"sfp/internal/filterinfo"
)

// Strategy decides how many items the i-th chunk (0-based) of a group
// should hold. Implementations: Fixed, Ladder, Function.
type Strategy interface {
	ChunkSize(index int) (int64, error)
}

// Fixed sizes every chunk identically.
type Fixed int64

func (f Fixed) ChunkSize(index int) (int64, error) { return int64(f), nil }

// Ladder sizes chunk i from a fixed table of rungs. A group that grows past
// the last rung hits LadderExhausted — a fatal configuration error, since
// the operator never defined a size for that index.
type Ladder []int64

func (l Ladder) ChunkSize(index int) (int64, error) {
	if index < 0 || index >= len(l) {
		return 0, &engineerr.LadderExhausted{Index: index, Max: len(l)}
	}
	return l[index], nil
}

// Function sizes chunk i by an arbitrary caller-supplied function.
type Function func(index int) (int64, error)

func (f Function) ChunkSize(index int) (int64, error) { return f(index) }

// DefaultLadder is the out-of-the-box sizing table: a modest first chunk,
// then two successively larger rungs.
func DefaultLadder() Ladder { return Ladder{100, 1000, 5000} }

// DefaultFPRate and DefaultWindow are the out-of-the-box Bloom parameters.
const (
	DefaultFPRate = 0.001
	DefaultWindow = 3600
)

// Config configures an Expander.
type Config struct {
	AppID      string
	FPRate     float64
	Window     time.Duration
	Strategy   Strategy
	NowFunc    func() time.Time
	Bitmap     bitmap.Store
	Registry   filterinfo.Registry
}

// Expander builds filter.Chunk instances for a group from the registry's
// current state, and mints new chunks as a group grows. It is the only
// component that knows how to turn a registry entry or a bare index into a
// concrete, sized, hashed Chunk.
type Expander struct {
	appid    string
	fpRate   float64
	window   int64
	strategy Strategy
	now      func() time.Time
	bitmap   bitmap.Store
	registry filterinfo.Registry
}

// New builds an Expander from cfg, applying defaults for zero-valued
// fields, mirroring BloomExpandStrategy::build_from_redis's defaults
// (ladder [100,1000,5000], fp_rate 0.001, one-hour rotation window).
func New(cfg Config) *Expander {
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = DefaultLadder()
	}
	fpRate := cfg.FPRate
	if fpRate <= 0 {
		fpRate = DefaultFPRate
	}
	window := int64(cfg.Window / time.Second)
	if window <= 0 {
		window = DefaultWindow
	}
	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}
	return &Expander{
		appid:    cfg.AppID,
		fpRate:   fpRate,
		window:   window,
		strategy: strategy,
		now:      now,
		bitmap:   cfg.Bitmap,
		registry: cfg.Registry,
	}
}

// LoadFilterGroup rebuilds the full chunk list for group from the
// registry's current entries, in registry order (ascending by code — the
// single source of truth for chunk order). Grounded on
// BloomExpandStrategy::load_filter_group.
func (e *Expander) LoadFilterGroup(ctx context.Context, group string) ([]*filter.Chunk, error) {
	groupKey := chunkkey.Prefix(e.appid, group)
	entries, err := e.registry.List(ctx, groupKey)
	if err != nil {
		return nil, fmt.Errorf("expand: load filter group %s: %w", group, err)
	}

	chunks := make([]*filter.Chunk, 0, len(entries))
	for i, entry := range entries {
		size, err := e.strategy.ChunkSize(i)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, filter.New(group, entry.Code, groupKey, size, e.fpRate, e.bitmap, e.registry, nil))
	}
	return chunks, nil
}

// ExpandChunk mints a new chunk for group at index (0-based). index < 0
// means "append at the current end" — the registry is re-listed to find
// the current count, so two racing extenders always compute the same next
// index from a common observation. Grounded on
// BloomExpandStrategy::expand_chunk.
func (e *Expander) ExpandChunk(ctx context.Context, group string, index int) (*filter.Chunk, error) {
	groupKey := chunkkey.Prefix(e.appid, group)
	if index < 0 {
		entries, err := e.registry.List(ctx, groupKey)
		if err != nil {
			return nil, fmt.Errorf("expand: list current chunks for %s: %w", group, err)
		}
		index = len(entries)
	}

	size, err := e.strategy.ChunkSize(index)
	if err != nil {
		return nil, err
	}

	bucketTS := chunkkey.BucketTimestamp(e.now().Unix(), e.window)
	code := chunkkey.ChunkKey(e.appid, group, bucketTS, index)
	return filter.New(group, code, groupKey, size, e.fpRate, e.bitmap, e.registry, nil), nil
}
