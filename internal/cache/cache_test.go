package cache

import (
	"testing"

	"github.com/seelabs/nudb/internal/bucket"
)

func TestBucketCacheGetPutEvict(t *testing.T) {
	c, err := NewBucketCache(2)
	if err != nil {
		t.Fatal(err)
	}
	b := bucket.New(64)
	c.Put(1, b)

	got, ok := c.Get(1)
	if !ok || got != b {
		t.Fatalf("expected cached bucket back, got %v %v", got, ok)
	}

	c.Evict(1)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected miss after Evict")
	}
}

func TestBucketCacheEvictsLRUOnOverflow(t *testing.T) {
	c, err := NewBucketCache(1)
	if err != nil {
		t.Fatal(err)
	}
	c.Put(1, bucket.New(64))
	c.Put(2, bucket.New(64))

	if _, ok := c.Get(1); ok {
		t.Fatal("expected bucket 1 to have been evicted once capacity was exceeded")
	}
	if _, ok := c.Get(2); !ok {
		t.Fatal("expected bucket 2 to remain cached")
	}
}

func TestDirtyMarkAndIndices(t *testing.T) {
	d := NewDirty()
	d.Mark(3)
	d.Mark(7)
	d.Mark(3) // idempotent

	if !d.IsDirty(3) || !d.IsDirty(7) {
		t.Fatal("expected 3 and 7 marked dirty")
	}
	if d.IsDirty(4) {
		t.Fatal("4 was never marked")
	}

	got := d.Indices()
	want := []uint64{3, 7}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Indices() = %v, want %v", got, want)
	}

	d.Clear()
	if len(d.Indices()) != 0 {
		t.Fatal("expected no dirty indices after Clear")
	}
}

func TestArenaAllocGrowsAndResets(t *testing.T) {
	a := NewArena(4)
	first := a.Alloc(4)
	copy(first, []byte{1, 2, 3, 4})

	second := a.Alloc(8) // forces growth past the initial 4-byte backing slice
	copy(second, []byte{5, 6, 7, 8, 9, 10, 11, 12})

	if first[0] != 1 {
		t.Fatal("first allocation's contents should survive growth")
	}

	a.Reset()
	third := a.Alloc(4)
	if len(third) != 4 {
		t.Fatalf("Alloc after Reset returned %d bytes, want 4", len(third))
	}
}

func TestNegativeFilterNeverFalseNegative(t *testing.T) {
	f := NewNegativeFilter(1000, 0.01)
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for _, k := range keys {
		f.Add(k)
	}
	for _, k := range keys {
		if !f.MaybeContains(k) {
			t.Fatalf("bloom filter produced a false negative for %q", k)
		}
	}
}
