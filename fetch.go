package nudb

import (
	"bytes"

	"github.com/seelabs/nudb/internal/bucket"
	"github.com/seelabs/nudb/internal/codec"
	"github.com/seelabs/nudb/pkg/nudberr"
)

// storeDataReader lets the bucket engine confirm a hash match is a real key
// match by reading the key bytes back from the data file.
type storeDataReader struct {
	s *Store
}

func (d storeDataReader) ReadKeyAt(offset uint64, keySize int) ([]byte, error) {
	const keyOff = 4 + 8 + 1 + 4 // CRC(4) totalLen(8) kind(1) keyLen(4)
	buf := make([]byte, keySize)
	if _, err := d.s.files.Data.ReadAt(buf, int64(offset)+keyOff); err != nil {
		return nil, err
	}
	return buf, nil
}

// bucketOffset returns the key file byte offset of bucket index.
func (s *Store) bucketOffset(index uint64) int64 {
	return int64(codec.KeyHeaderSize) + int64(index)*int64(s.blkSize)
}

// loadBucket returns the deserialized bucket at index, consulting the cache
// first.
func (s *Store) loadBucket(index uint64) (*bucket.Bucket, error) {
	if b, ok := s.cache.Get(index); ok {
		return b, nil
	}
	buf := make([]byte, s.blkSize)
	if _, err := s.files.Key.ReadAt(buf, s.bucketOffset(index)); err != nil {
		return nil, nudberr.New(nudberr.IO, "read bucket", err)
	}
	b, err := bucket.Deserialize(buf, int(s.blkSize))
	if err != nil {
		return nil, nudberr.New(nudberr.CorruptRecord, "decode bucket", err)
	}
	s.cache.Put(index, b)
	return b, nil
}

// readValueAt reads back a previously appended value record and returns its
// value bytes.
func (s *Store) readValueAt(offset uint64) ([]byte, error) {
	r := &offsetReader{p: s.files.Data, off: int64(offset)}
	rec, err := codec.DecodeDataRecord(r)
	if err != nil {
		return nil, nudberr.New(nudberr.CorruptRecord, "decode value record", err).WithOffset(int64(offset))
	}
	return rec.Value, nil
}

type offsetReader struct {
	p   interface {
		ReadAt(p []byte, off int64) (int, error)
	}
	off int64
}

func (r *offsetReader) Read(b []byte) (int, error) {
	n, err := r.p.ReadAt(b, r.off)
	r.off += int64(n)
	return n, err
}

// lookup is the shared read path behind Fetch and InsertChecked: check the
// pending map first (it is the most recent state), then the optional bloom
// filter, then the committed index.
func (s *Store) lookup(h uint64, key []byte) ([]byte, bool, error) {
	for _, e := range s.pending.Lookup(h) {
		if bytes.Equal(e.Key, key) {
			return e.Value, true, nil
		}
	}

	if s.bloom != nil && !s.bloom.MaybeContains(key) {
		return nil, false, nil
	}

	index := s.modulus.BucketFor(h)
	b, err := s.loadBucket(index)
	if err != nil {
		return nil, false, err
	}

	dr := storeDataReader{s: s}
	for {
		if e, found, err := b.Find(h, key, dr); err != nil {
			return nil, false, err
		} else if found {
			value, err := s.readValueAt(e.Offset)
			if err != nil {
				return nil, false, err
			}
			return value, true, nil
		}
		if b.Spill() == 0 {
			return nil, false, nil
		}
		r := &offsetReader{p: s.files.Data, off: int64(b.Spill())}
		rec, err := codec.DecodeDataRecord(r)
		if err != nil {
			return nil, false, nudberr.New(nudberr.CorruptRecord, "decode spill page", err)
		}
		b, err = bucket.Deserialize(rec.Value, int(s.blkSize))
		if err != nil {
			return nil, false, nudberr.New(nudberr.CorruptRecord, "decode spill bucket", err)
		}
	}
}

// Fetch returns the value stored under key. nudberr.Kind()==nudberr.KeyNotFound
// when key has never been inserted.
func (s *Store) Fetch(key []byte) ([]byte, error) {
	if err := validateKey(key, s.keySize); err != nil {
		return nil, err
	}
	h := s.hasher.Sum64(key, s.salt)
	value, found, err := s.lookup(h, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nudberr.New(nudberr.KeyNotFound, "key not found", nil)
	}
	return value, nil
}
