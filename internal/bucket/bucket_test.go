package bucket

import (
	"testing"
)

type fakeDataReader map[uint64][]byte

func (f fakeDataReader) ReadKeyAt(offset uint64, keySize int) ([]byte, error) {
	return f[offset], nil
}

func TestInsertFindSorted(t *testing.T) {
	b := New(64)
	reader := fakeDataReader{10: []byte("aaa"), 20: []byte("bbb"), 30: []byte("ccc")}

	b.Insert(Entry{Hash: 300, Offset: 30, Size: 3})
	b.Insert(Entry{Hash: 100, Offset: 10, Size: 3})
	b.Insert(Entry{Hash: 200, Offset: 20, Size: 3})

	for i := 1; i < len(b.entries); i++ {
		if b.entries[i-1].Hash > b.entries[i].Hash {
			t.Fatalf("entries not sorted: %+v", b.entries)
		}
	}

	e, found, err := b.Find(200, []byte("bbb"), reader)
	if err != nil {
		t.Fatal(err)
	}
	if !found || e.Offset != 20 {
		t.Fatalf("expected to find entry at offset 20, got %+v found=%v", e, found)
	}

	_, found, err = b.Find(200, []byte("zzz"), reader)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected no match for wrong key despite hash match")
	}

	_, found, err = b.Find(999, nil, reader)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected no match for absent hash")
	}
}

func TestCapacityAndOverflow(t *testing.T) {
	b := New(32) // header(12) + entry(20) = one entry fits exactly
	if got := b.Capacity(); got != 1 {
		t.Fatalf("capacity = %d, want 1", got)
	}

	if over := b.Insert(Entry{Hash: 1, Offset: 1, Size: 1}); over {
		t.Fatal("first insert should not overflow")
	}
	if over := b.Insert(Entry{Hash: 2, Offset: 2, Size: 1}); !over {
		t.Fatal("second insert should overflow a capacity-1 bucket")
	}

	overflow := b.PopOverflow()
	if len(overflow) != 1 {
		t.Fatalf("expected 1 overflow entry, got %d", len(overflow))
	}
	if b.Len() != 1 {
		t.Fatalf("bucket should retain capacity entries after PopOverflow, got %d", b.Len())
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	b := New(128)
	b.Insert(Entry{Hash: 5, Offset: 50, Size: 5})
	b.Insert(Entry{Hash: 1, Offset: 10, Size: 1})
	b.SetSpill(999)

	buf, err := b.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	got, err := Deserialize(buf, 128)
	if err != nil {
		t.Fatal(err)
	}
	if got.Spill() != 999 || got.Len() != 2 {
		t.Fatalf("roundtrip mismatch: spill=%d len=%d", got.Spill(), got.Len())
	}
	if got.entries[0].Hash != 1 || got.entries[1].Hash != 5 {
		t.Fatalf("roundtrip order mismatch: %+v", got.entries)
	}
}

func TestSerializeIntoRejectsWrongBufferSize(t *testing.T) {
	b := New(64)
	if err := b.SerializeInto(make([]byte, 32)); err == nil {
		t.Fatal("expected an error for a buffer not matching the bucket's block size")
	}
}

func TestSplitPartitionsByNewBit(t *testing.T) {
	b := New(256)
	newBit := uint64(1) << 2 // bit 2 distinguishes the split

	b.Insert(Entry{Hash: 0b000, Offset: 1}) // stays
	b.Insert(Entry{Hash: 0b100, Offset: 2}) // moves
	b.Insert(Entry{Hash: 0b001, Offset: 3}) // stays
	b.Insert(Entry{Hash: 0b110, Offset: 4}) // moves

	into := New(256)
	b.Split(into, newBit)

	if b.Len() != 2 || into.Len() != 2 {
		t.Fatalf("expected 2/2 split, got %d/%d", b.Len(), into.Len())
	}
	for _, e := range b.entries {
		if e.Hash&newBit != 0 {
			t.Fatalf("entry %+v should have moved", e)
		}
	}
	for _, e := range into.entries {
		if e.Hash&newBit == 0 {
			t.Fatalf("entry %+v should have stayed", e)
		}
	}
}
