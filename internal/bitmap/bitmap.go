// Package bitmap defines the remote bit-store contract a Bloom chunk is
// built against. Concrete stores live in subpackages (redisbitmap,
// memstore); the engine never depends on a concrete store, only on Store.
package bitmap

import "context"

// Store is the remote bit-store contract. Every method is idempotent and
// safe to retry: Set/MulSet only ever turn bits on, never off, so a retried
// call after a transport timeout converges to the same state.
type Store interface {
	// Set turns on a single bit at offset in key.
	Set(ctx context.Context, key string, offset uint64) error

	// Get reports whether the bit at offset in key is set. A missing key
	// reads as all bits unset.
	Get(ctx context.Context, key string, offset uint64) (bool, error)

	// MulSet turns on every bit in offsets, across possibly many keys, in as
	// few round trips as the store allows. The result is an OR-merge: bits
	// already set are left alone.
	MulSet(ctx context.Context, sets map[string][]uint64) error

	// MulGet returns the raw byte buffer backing each of the given keys.
	// A missing key returns an empty (not nil-erroring) buffer.
	MulGet(ctx context.Context, keys []string) (map[string][]byte, error)
}
