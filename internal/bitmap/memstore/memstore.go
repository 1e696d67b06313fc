// Package memstore is an in-memory bitmap.Store, used by engine tests that
// exercise chunk/group/pool logic without a real Redis store.
package memstore

import (
	"context"
	"sync"
)

// Store is a mutex-protected, in-memory bitmap.Store. Zero value is ready
// to use.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func byteLen(offset uint64) uint64 {
	return offset/8 + 1
}

func (s *Store) growLocked(key string, need uint64) []byte {
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
	buf := s.data[key]
	if uint64(len(buf)) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
		s.data[key] = buf
	}
	return buf
}

// Set turns on the bit at offset in key, growing the backing buffer if
// needed.
func (s *Store) Set(ctx context.Context, key string, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.growLocked(key, byteLen(offset))
	buf[offset/8] |= 1 << (offset % 8)
	return nil
}

// Get reports whether the bit at offset in key is set.
func (s *Store) Get(ctx context.Context, key string, offset uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.data[key]
	idx := offset / 8
	if idx >= uint64(len(buf)) {
		return false, nil
	}
	return buf[idx]&(1<<(offset%8)) != 0, nil
}

// MulSet turns on every offset for every key in sets.
func (s *Store) MulSet(ctx context.Context, sets map[string][]uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, offsets := range sets {
		var maxOffset uint64
		for _, off := range offsets {
			if off > maxOffset {
				maxOffset = off
			}
		}
		buf := s.growLocked(key, byteLen(maxOffset))
		for _, off := range offsets {
			buf[off/8] |= 1 << (off % 8)
		}
	}
	return nil
}

// MulGet returns a copy of the raw buffer backing each key. Missing keys
// come back as an empty, non-nil buffer.
func (s *Store) MulGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		buf := s.data[key]
		cp := make([]byte, len(buf))
		copy(cp, buf)
		out[key] = cp
	}
	return out, nil
}
