// Package bucket implements the fixed-size on-disk page that anchors one
// slot of the index: an array of (hash, offset, size) entries kept sorted by
// hash, plus a spill pointer chaining to overflow pages stored as ordinary
// records in the data file. Entries are appended in sorted-insert order the
// way memtable.SkipList.Put walks to an insertion point, but here against a
// bounded slice instead of a skip list, since a bucket page has a hard
// capacity.
package bucket

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/seelabs/nudb/internal/codec"
)

// entryOnDiskSize is the serialized width of one entry: hash(8) + offset(8) + size(4).
const entryOnDiskSize = 8 + 8 + 4

// Entry is one key's location in the data file, as recorded in a bucket.
type Entry struct {
	Hash   uint64
	Offset uint64
	Size   uint32
}

// Bucket is one page of the key file's bucket array (or a spill page).
type Bucket struct {
	blockSize int
	entries   []Entry
	spill     uint64 // 0 means no spill chain
}

// New returns an empty bucket sized to hold entries within blockSize bytes.
func New(blockSize int) *Bucket {
	return &Bucket{blockSize: blockSize}
}

// Capacity reports the maximum number of entries that fit in one page
// before a spill record is required, per spec's fixed block_size pages.
func (b *Bucket) Capacity() int {
	return CapacityForBlockSize(b.blockSize)
}

// CapacityForBlockSize computes a page's entry capacity without requiring a
// Bucket instance, for callers (commit planning) that need the number
// before any bucket has been loaded.
func CapacityForBlockSize(blockSize int) int {
	header := 4 + 8 // count(4) + spill(8)
	return (blockSize - header) / entryOnDiskSize
}

func (b *Bucket) Len() int { return len(b.entries) }

func (b *Bucket) Spill() uint64     { return b.spill }
func (b *Bucket) SetSpill(off uint64) { b.spill = off }

func (b *Bucket) Entries() []Entry { return b.entries }

// DataReader is the narrow read access bucket needs into the data file to
// confirm a hash match is an actual key match, not a collision.
type DataReader interface {
	ReadKeyAt(offset uint64, keySize int) ([]byte, error)
}

// Find looks for key among entries whose hash equals hash, confirming the
// match by reading the key bytes back from the data file. It does not
// follow the spill chain; callers walk Spill() themselves so the bucket
// engine never needs to know how spill pages are fetched (cache vs. disk).
func (b *Bucket) Find(hash uint64, key []byte, r DataReader) (Entry, bool, error) {
	lo := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Hash >= hash })
	for i := lo; i < len(b.entries) && b.entries[i].Hash == hash; i++ {
		e := b.entries[i]
		got, err := r.ReadKeyAt(e.Offset, len(key))
		if err != nil {
			return Entry{}, false, err
		}
		if bytes.Equal(got, key) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Insert adds e in sorted-by-hash position. It reports whether the bucket
// is now over capacity and needs a spill record allocated for the
// overflowing entries; the caller (commit) is responsible for actually
// moving entries into a spill page, since that requires data-file I/O this
// package doesn't perform.
func (b *Bucket) Insert(e Entry) (overCapacity bool) {
	i := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Hash >= e.Hash })
	b.entries = append(b.entries, Entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = e
	return len(b.entries) > b.Capacity()
}

// PopOverflow removes and returns entries beyond Capacity() (the entries
// with the highest hashes, in ascending hash order), for relocation into a
// spill record.
func (b *Bucket) PopOverflow() []Entry {
	cap := b.Capacity()
	if len(b.entries) <= cap {
		return nil
	}
	overflow := append([]Entry(nil), b.entries[cap:]...)
	b.entries = b.entries[:cap]
	return overflow
}

// Split partitions entries between b (kept, low bucket) and into (new, high
// bucket) according to whether the hash's newBit is set. Grounded on
// index.SplitTarget: newBit is the bit that distinguishes the split target
// from its origin.
func (b *Bucket) Split(into *Bucket, newBit uint64) {
	var keep, move []Entry
	for _, e := range b.entries {
		if e.Hash&newBit != 0 {
			move = append(move, e)
		} else {
			keep = append(keep, e)
		}
	}
	b.entries = keep
	into.entries = append(into.entries, move...)
	sort.Slice(into.entries, func(i, j int) bool { return into.entries[i].Hash < into.entries[j].Hash })
}

// Serialize writes the bucket's fixed-size page: count(4) | spill(8) |
// entries, zero-padded to blockSize, into a freshly allocated buffer.
func (b *Bucket) Serialize() ([]byte, error) {
	buf := make([]byte, b.blockSize)
	if err := b.SerializeInto(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SerializeInto writes the page into a caller-supplied buffer of exactly
// blockSize bytes, letting a commit batch source its page buffers from a
// shared arena instead of allocating one slice per touched bucket.
func (b *Bucket) SerializeInto(buf []byte) error {
	if len(b.entries) > b.Capacity() {
		return fmt.Errorf("bucket: %d entries exceeds capacity %d", len(b.entries), b.Capacity())
	}
	if len(buf) != b.blockSize {
		return fmt.Errorf("bucket: buffer is %d bytes, want block size %d", len(buf), b.blockSize)
	}
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(b.entries)))
	binary.LittleEndian.PutUint64(buf[4:12], b.spill)
	o := 12
	for _, e := range b.entries {
		binary.LittleEndian.PutUint64(buf[o:o+8], e.Hash)
		binary.LittleEndian.PutUint64(buf[o+8:o+16], e.Offset)
		binary.LittleEndian.PutUint32(buf[o+16:o+20], e.Size)
		o += entryOnDiskSize
	}
	return nil
}

// Deserialize reads a page previously written by Serialize.
func Deserialize(buf []byte, blockSize int) (*Bucket, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("bucket: %w", codec.ErrCorruptRecord)
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	spill := binary.LittleEndian.Uint64(buf[4:12])
	b := &Bucket{blockSize: blockSize, spill: spill}
	o := 12
	need := int(count)*entryOnDiskSize + o
	if need > len(buf) {
		return nil, fmt.Errorf("bucket: %w: truncated page", codec.ErrCorruptRecord)
	}
	b.entries = make([]Entry, count)
	for i := range b.entries {
		b.entries[i] = Entry{
			Hash:   binary.LittleEndian.Uint64(buf[o : o+8]),
			Offset: binary.LittleEndian.Uint64(buf[o+8 : o+16]),
			Size:   binary.LittleEndian.Uint32(buf[o+16 : o+20]),
		}
		o += entryOnDiskSize
	}
	return b, nil
}
