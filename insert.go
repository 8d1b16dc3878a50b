package nudb

import (
	"github.com/seelabs/nudb/internal/codec"
	"github.com/seelabs/nudb/internal/pending"
	"github.com/seelabs/nudb/pkg/nudberr"
)

// Insert appends value to the data file under key and stages it for the
// next commit. It does not check for an existing key with the same value;
// duplicate keys are allowed and Fetch returns whichever copy the index
// currently points to, matching NuDB's non-probing default insert (see
// DESIGN.md's Open Question 1). Safe for concurrent use by a single writer
// goroutine plus any number of concurrent Fetch callers.
func (s *Store) Insert(key, value []byte) error {
	if s.closed.Load() {
		return nudberr.New(nudberr.InvalidArgument, "store is closed", nil)
	}
	if err := validateKey(key, s.keySize); err != nil {
		return err
	}

	h := s.hasher.Sum64(key, s.salt)

	offset, err := s.appendValueRecord(key, value)
	if err != nil {
		return err
	}

	s.pending.Put(pending.Entry{
		Hash:   h,
		Key:    key,
		Value:  value,
		Offset: offset,
		Size:   uint32(len(value)),
	})
	return nil
}

// InsertChecked is Insert's probing variant: it fails with
// nudberr.Kind()==nudberr.KeyExists instead of writing anything if key is
// already present, either staged in the pending map or committed to the
// index. See DESIGN.md's Open Question 1 for why both variants are exposed.
func (s *Store) InsertChecked(key, value []byte) error {
	if s.closed.Load() {
		return nudberr.New(nudberr.InvalidArgument, "store is closed", nil)
	}
	if err := validateKey(key, s.keySize); err != nil {
		return err
	}

	h := s.hasher.Sum64(key, s.salt)

	if _, found, err := s.lookup(h, key); err != nil {
		return err
	} else if found {
		return nudberr.New(nudberr.KeyExists, "key already present", nil)
	}

	offset, err := s.appendValueRecord(key, value)
	if err != nil {
		return err
	}
	s.pending.Put(pending.Entry{
		Hash:   h,
		Key:    key,
		Value:  value,
		Offset: offset,
		Size:   uint32(len(value)),
	})
	return nil
}

// appendValueRecord writes key/value as a value-kind data record and
// returns the offset it was written at. Only the record's first write goes
// through file.Native.Append; the rest of the record is written with WriteAt
// at the offsets after it, so this is not safe to run concurrently with
// another record append (another Insert, or a Flush writing spill pages).
func (s *Store) appendValueRecord(key, value []byte) (uint64, error) {
	rec := codec.DataRecord{Kind: codec.RecordKindValue, Key: key, Value: value}
	w := &appendWriter{p: s.files.Data}
	if err := codec.EncodeDataRecord(w, rec); err != nil {
		return 0, nudberr.New(nudberr.IO, "append value record", err)
	}
	return w.recordOffset, nil
}
