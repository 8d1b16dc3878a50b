// Package hash provides the salted key hash the index and bucket engine use
// to place and order entries. The default implementation matches NuDB's own
// choice of xxHash (see original_source's xxhasher) via the one xxHash
// package present in the example corpus.
package hash

import "github.com/cespare/xxhash/v2"

// Hasher computes a 64-bit digest of key, mixed with salt. Implementations
// must be safe for concurrent use by multiple readers.
type Hasher interface {
	Sum64(key []byte, salt uint64) uint64
}

// XXHash is the default Hasher, grounded on cespare/xxhash/v2.
type XXHash struct{}

func (XXHash) Sum64(key []byte, salt uint64) uint64 {
	d := xxhash.New()
	var saltBuf [8]byte
	saltBuf[0] = byte(salt)
	saltBuf[1] = byte(salt >> 8)
	saltBuf[2] = byte(salt >> 16)
	saltBuf[3] = byte(salt >> 24)
	saltBuf[4] = byte(salt >> 32)
	saltBuf[5] = byte(salt >> 40)
	saltBuf[6] = byte(salt >> 48)
	saltBuf[7] = byte(salt >> 56)
	d.Write(saltBuf[:])
	d.Write(key)
	return d.Sum64()
}
