// Package filterinfo defines the remote registry contract tracking how many
// chunks exist for a group, and how many items each holds. The registry is
// the single source of truth for a group's chunk order: List returns
// entries sorted ascending by chunk code.
package filterinfo

import "context"

// Entry is one chunk's registry record.
type Entry struct {
	Code  string
	Count int64
}

// Registry is the remote registry contract.
type Registry interface {
	// List returns every chunk entry for groupKey, sorted ascending by
	// Code. An absent group returns an empty, non-nil slice.
	List(ctx context.Context, groupKey string) ([]Entry, error)

	// Count returns the item count for one chunk, 0 if absent.
	Count(ctx context.Context, groupKey, code string) (int64, error)

	// Add atomically increments a chunk's count by delta, creating the
	// entry at delta if it doesn't yet exist.
	Add(ctx context.Context, groupKey, code string, delta int64) error
}
