package cache

import "github.com/bits-and-blooms/bloom/v3"

// NegativeFilter short-circuits fetches for keys that were never inserted,
// grounded directly on sst/writer.go's per-segment bloom.NewWithEstimates
// filter. Purely an optimization: a false positive just means a normal
// fetch proceeds and finds nothing, so it is never consulted as an
// authority on whether a key exists.
type NegativeFilter struct {
	filter *bloom.BloomFilter
}

// NewNegativeFilter sizes the filter for expectedKeys entries at the given
// false-positive rate, mirroring sst/writer.go's bloom.NewWithEstimates call.
func NewNegativeFilter(expectedKeys uint, falsePositiveRate float64) *NegativeFilter {
	return &NegativeFilter{filter: bloom.NewWithEstimates(expectedKeys, falsePositiveRate)}
}

func (f *NegativeFilter) Add(key []byte) {
	f.filter.Add(key)
}

// MaybeContains reports false only when key is definitely absent.
func (f *NegativeFilter) MaybeContains(key []byte) bool {
	return f.filter.Test(key)
}
