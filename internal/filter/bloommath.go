package filter

import "math"

const ln2 = math.Ln2

// OptimalM returns the bit-array size for a chunk meant to hold capacity
// items at the given target false-positive rate, grounded on
// original_source/sgflt/src/bloom_filter.rs's bitmap_size: m =
// ceil(-capacity*ln(p) / ln(2)^2).
func OptimalM(capacity int64, fpRate float64) uint64 {
	if capacity <= 0 {
		capacity = 1
	}
	m := math.Ceil(-float64(capacity) * math.Log(fpRate) / (ln2 * ln2))
	if m < 1 {
		m = 1
	}
	return uint64(m)
}

// OptimalK returns the probe count for the given target false-positive
// rate, grounded on bloom_filter.rs's optimal_k: k = ceil(-ln(p) / ln(2)).
func OptimalK(fpRate float64) int {
	k := math.Ceil(-math.Log(fpRate) / ln2)
	if k < 1 {
		k = 1
	}
	return int(k)
}
