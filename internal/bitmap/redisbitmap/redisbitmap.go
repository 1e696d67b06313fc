// Package redisbitmap implements bitmap.Store against a Redis-compatible
// store, grounded on original_source/sgflt/src/bitmap_redis.rs: single bits
// via SETBIT/GETBIT, bulk sets pipelined, bulk reads via GET on the raw key.
package redisbitmap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client is the subset of go-redis's command set this store needs, so a
// *redis.Client and a *redis.ClusterClient are interchangeable callers.
type Client interface {
	redis.Cmdable
}

// Store is a Redis-backed bitmap.Store.
type Store struct {
	client Client
}

// New wraps an existing Redis client (single-node or cluster) as a
// bitmap.Store.
func New(client Client) *Store {
	return &Store{client: client}
}

// Set turns on the bit at offset in key via SETBIT.
func (s *Store) Set(ctx context.Context, key string, offset uint64) error {
	if err := s.client.SetBit(ctx, key, int64(offset), 1).Err(); err != nil {
		return fmt.Errorf("redisbitmap: setbit %s: %w", key, err)
	}
	return nil
}

// Get reports whether the bit at offset in key is set via GETBIT. A missing
// key reads back from go-redis as 0, matching the all-unset contract.
func (s *Store) Get(ctx context.Context, key string, offset uint64) (bool, error) {
	n, err := s.client.GetBit(ctx, key, int64(offset)).Result()
	if err != nil {
		return false, fmt.Errorf("redisbitmap: getbit %s: %w", key, err)
	}
	return n != 0, nil
}

// MulSet turns on every offset for every key in sets, pipelining all the
// SETBIT calls into a single round trip.
func (s *Store) MulSet(ctx context.Context, sets map[string][]uint64) error {
	if len(sets) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for key, offsets := range sets {
		for _, off := range offsets {
			pipe.SetBit(ctx, key, int64(off), 1)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisbitmap: mulset pipeline: %w", err)
	}
	return nil
}

// MulGet fetches the raw byte buffer backing each key in one pipelined
// round trip. A missing key (redis.Nil) comes back as an empty buffer.
func (s *Store) MulGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(keys))
	for _, key := range keys {
		cmds[key] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redisbitmap: mulget pipeline: %w", err)
	}

	for key, cmd := range cmds {
		b, err := cmd.Bytes()
		if err != nil {
			if err == redis.Nil {
				out[key] = []byte{}
				continue
			}
			return nil, fmt.Errorf("redisbitmap: mulget %s: %w", key, err)
		}
		out[key] = b
	}
	return out, nil
}
