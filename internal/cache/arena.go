package cache

// Arena is a bump allocator for scratch buffers needed only for the
// duration of one commit batch: bucket serialization, spill payload
// staging. Grounded on test_store.hpp's Buffer_t, a resize-in-place scratch
// buffer the NuDB test suite reuses per generated item instead of
// allocating fresh each time; this generalizes that single buffer into a
// bump arena so many scratch allocations in one commit share one backing
// slice.
type Arena struct {
	buf []byte
	off int
}

// NewArena returns an arena pre-sized to cap bytes.
func NewArena(cap int) *Arena {
	return &Arena{buf: make([]byte, cap)}
}

// Alloc returns an n-byte slice backed by the arena, growing it if needed.
// The returned slice is only valid until the next Reset.
func (a *Arena) Alloc(n int) []byte {
	if a.off+n > len(a.buf) {
		grown := make([]byte, len(a.buf)*2+n)
		copy(grown, a.buf[:a.off])
		a.buf = grown
	}
	s := a.buf[a.off : a.off+n]
	a.off += n
	return s
}

// Reset rewinds the arena for reuse by the next commit batch.
func (a *Arena) Reset() {
	a.off = 0
}
