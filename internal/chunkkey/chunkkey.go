// Package chunkkey derives the remote-store key names and the per-chunk
// hash pair a Bloom chunk probes with.
//
// Every chunk is addressed by two strings: the group key, shared by all
// chunks of one (appid, group), and the chunk key, unique to one chunk
// within that group. Both are built from the same "SFP_" prefix so that a
// store-wide key scan groups naturally by appid and group.
//
// A chunk's probe hashes are derived once, from (group, code), by MD5-hashing
// two seed strings and splitting each digest into two little-endian u64
// words that seed an independent keyed 64-bit hash. This replaces the
// original implementation's unsafe reinterpret of a seeded RandomState: the
// seed derivation here is a pure function of (group, code), so any process
// that recomputes it for the same pair gets bit-identical hashers.
package chunkkey

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/dchest/siphash"
)

// Prefix returns the group key shared by every chunk of (appid, group).
func Prefix(appid, group string) string {
	return fmt.Sprintf("SFP_%s_%s", appid, group)
}

// ChunkKey returns the remote store key for one chunk at a given rotation
// bucket and position: the chunk's bitmap key, and its field name in the
// group's registry hash (whose key is Prefix).
func ChunkKey(appid, group string, bucketTS int64, index int) string {
	return fmt.Sprintf("%s_%d_%d", Prefix(appid, group), bucketTS, index)
}

// BucketTimestamp floors now to the start of the current rotation window.
func BucketTimestamp(nowUnix, windowSeconds int64) int64 {
	if windowSeconds <= 0 {
		return nowUnix
	}
	return nowUnix - nowUnix%windowSeconds
}

// seedWords MD5-hashes seed and splits the digest into two little-endian
// u64 words used as a siphash key.
func seedWords(seed string) (k0, k1 uint64) {
	sum := md5.Sum([]byte(seed))
	k0 = binary.LittleEndian.Uint64(sum[0:8])
	k1 = binary.LittleEndian.Uint64(sum[8:16])
	return k0, k1
}

// Hashers holds the two independent keyed 64-bit hashers for one chunk,
// seeded from (group, code). Stateless per call: safe for concurrent use
// by any number of goroutines probing the same chunk.
type Hashers struct {
	k0a, k1a uint64
	k0b, k1b uint64
}

// NewHashers derives the hasher pair for a chunk identified by group and
// code. Same (group, code) always yields the same pair, in this process or
// any other.
func NewHashers(group, code string) Hashers {
	k0a, k1a := seedWords("a_" + group)
	k0b, k1b := seedWords("b_" + code)
	return Hashers{k0a: k0a, k1a: k1a, k0b: k0b, k1b: k1b}
}

// HA is the first of the two keyed hashes of item.
func (h Hashers) HA(item []byte) uint64 {
	return siphash.Hash(h.k0a, h.k1a, item)
}

// HB is the second of the two keyed hashes of item.
func (h Hashers) HB(item []byte) uint64 {
	return siphash.Hash(h.k0b, h.k1b, item)
}

// ProbeIndex returns the i-th bit index (0-based probe) for item in an m-bit
// filter, using the double-hashing formula index_i = (h_a + i*h_b) mod m.
func (h Hashers) ProbeIndex(item []byte, i int, m uint64) uint64 {
	ha, hb := h.HA(item), h.HB(item)
	return (ha + uint64(i)*hb) % m
}

// ProbeIndices returns all k probe indices for item in one call, reusing the
// two underlying hash evaluations.
func (h Hashers) ProbeIndices(item []byte, k int, m uint64) []uint64 {
	ha, hb := h.HA(item), h.HB(item)
	indices := make([]uint64, k)
	for i := 0; i < k; i++ {
		indices[i] = (ha + uint64(i)*hb) % m
	}
	return indices
}
