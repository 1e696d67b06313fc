// Package redisregistry implements filterinfo.Registry against a
// Redis-compatible store, grounded on
// original_source/sgflt/src/fiterinfo_bitmap_redis.rs: one hash per group,
// one field per chunk code, HINCRBY to grow a count, HGETALL plus a
// string sort to list chunks in the order the group was built.
package redisregistry

import (
	"fmt"
	"sort"

	"context"

	"github.com/redis/go-redis/v9"
	"sfp/internal/filterinfo"
)

// Client is the subset of go-redis's command set this registry needs.
type Client interface {
	redis.Cmdable
}

// Registry is a Redis-backed filterinfo.Registry.
type Registry struct {
	client Client
}

// New wraps an existing Redis client (single-node or cluster) as a
// filterinfo.Registry.
func New(client Client) *Registry {
	return &Registry{client: client}
}

// List returns every chunk entry for groupKey via HGETALL, sorted ascending
// by code — the same string-ordinal sort the original store used, so chunk
// order is byte-for-byte reproducible.
func (r *Registry) List(ctx context.Context, groupKey string) ([]filterinfo.Entry, error) {
	raw, err := r.client.HGetAll(ctx, groupKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisregistry: hgetall %s: %w", groupKey, err)
	}
	entries := make([]filterinfo.Entry, 0, len(raw))
	for code, countStr := range raw {
		var count int64
		if _, err := fmt.Sscan(countStr, &count); err != nil {
			return nil, fmt.Errorf("redisregistry: parse count for %s/%s: %w", groupKey, code, err)
		}
		entries = append(entries, filterinfo.Entry{Code: code, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
	return entries, nil
}

// Count returns one chunk's item count via HGET, 0 if absent.
func (r *Registry) Count(ctx context.Context, groupKey, code string) (int64, error) {
	n, err := r.client.HGet(ctx, groupKey, code).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redisregistry: hget %s/%s: %w", groupKey, code, err)
	}
	return n, nil
}

// Add atomically increments a chunk's count via HINCRBY, creating the field
// at delta if absent.
func (r *Registry) Add(ctx context.Context, groupKey, code string, delta int64) error {
	if err := r.client.HIncrBy(ctx, groupKey, code, delta).Err(); err != nil {
		return fmt.Errorf("redisregistry: hincrby %s/%s: %w", groupKey, code, err)
	}
	return nil
}
