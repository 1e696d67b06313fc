// Package memregistry is an in-memory filterinfo.Registry, used by engine
// tests that exercise chunk/group/pool logic without a real store.
package memregistry

import (
	"context"
	"sort"
	"sync"

	"sfp/internal/filterinfo"
)

// Registry is a mutex-protected, in-memory filterinfo.Registry.
type Registry struct {
	mu     sync.Mutex
	counts map[string]map[string]int64 // groupKey -> code -> count
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{counts: make(map[string]map[string]int64)}
}

// List returns every chunk entry for groupKey, sorted ascending by code.
func (r *Registry) List(ctx context.Context, groupKey string) ([]filterinfo.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byCode := r.counts[groupKey]
	entries := make([]filterinfo.Entry, 0, len(byCode))
	for code, count := range byCode {
		entries = append(entries, filterinfo.Entry{Code: code, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
	return entries, nil
}

// Count returns the item count for one chunk, 0 if absent.
func (r *Registry) Count(ctx context.Context, groupKey, code string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[groupKey][code], nil
}

// Add atomically increments a chunk's count by delta.
func (r *Registry) Add(ctx context.Context, groupKey, code string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byCode, ok := r.counts[groupKey]
	if !ok {
		byCode = make(map[string]int64)
		r.counts[groupKey] = byCode
	}
	byCode[code] += delta
	return nil
}
