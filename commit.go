package nudb

import (
	"github.com/seelabs/nudb/internal/bucket"
	"github.com/seelabs/nudb/internal/cache"
	"github.com/seelabs/nudb/internal/codec"
	"github.com/seelabs/nudb/internal/commitlog"
	"github.com/seelabs/nudb/internal/index"
	"github.com/seelabs/nudb/pkg/nudberr"
)

// Flush commits every insert staged since the last Flush: it groups the
// batch by target bucket, performs at most one incremental bucket split if
// the load factor is exceeded, and runs the commit protocol (update the
// touched buckets in memory and append any spill pages, log the buckets'
// pre-images and sync the log, sync the data file, write the buckets back
// and sync the key file, drop the log) so a crash at any point leaves the
// store recoverable on next Open.
//
// Grounded on segmentmanager/disk.go's WriteActive discipline (check state,
// do the work, sync) generalized from one active segment to the set of
// buckets this batch touches.
func (s *Store) Flush() error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	batch := s.pending.Swap()
	if len(batch) == 0 {
		return nil
	}

	type staged struct {
		hash  uint64
		key   []byte
		entry bucket.Entry
	}
	var entries []staged
	for _, es := range batch {
		for _, e := range es {
			entries = append(entries, staged{
				hash:  e.Hash,
				key:   e.Key,
				entry: bucket.Entry{Hash: e.Hash, Offset: e.Offset, Size: e.Size},
			})
		}
	}

	capacity := bucket.CapacityForBlockSize(int(s.blkSize))
	loadedBuckets := make(map[uint64]*bucket.Bucket)
	preImageOffsets := make(map[uint64][]byte) // index -> pre-commit serialized page
	dirty := cache.NewDirty()
	defer s.arena.Reset()

	load := func(idx uint64) (*bucket.Bucket, error) {
		if b, ok := loadedBuckets[idx]; ok {
			return b, nil
		}
		b, err := s.loadBucket(idx)
		if err != nil {
			return nil, err
		}
		pre := s.arena.Alloc(int(s.blkSize))
		if err := b.SerializeInto(pre); err != nil {
			return nil, nudberr.New(nudberr.IO, "serialize bucket pre-image", err)
		}
		preImageOffsets[idx] = pre
		loadedBuckets[idx] = b
		dirty.Mark(idx)
		return b, nil
	}

	preCommitDataLen, err := s.files.Data.Size()
	if err != nil {
		return nudberr.New(nudberr.IO, "stat data file", err)
	}
	preCommitKeyLen, err := s.files.Key.Size()
	if err != nil {
		return nudberr.New(nudberr.IO, "stat key file", err)
	}

	// The key header (bucket_count, N0, P) is logged and rewritten every
	// commit, not just ones that split, so the on-disk header never drifts
	// from the in-memory modulus this batch committed under. preCommitBucketCount
	// is also what the log header's PreCommitBuckets records, matching
	// §4.6 step 4's truncation target of header_size + pre_commit_bucket_count*block_size.
	preCommitBucketCount := s.bucketCount
	headerPreImage := s.currentKeyHeader().Encode()

	// Step 1: incremental split, at most one per commit, if the table's
	// approximate fill ratio exceeds the configured load factor.
	threshold := float64(s.bucketCount) * float64(capacity) * float64(s.loadFactorVal)
	if float64(s.liveKeys+uint64(len(entries))) > threshold {
		splitFrom, newModulus, newCount := s.modulus.Advance(s.bucketCount)
		target := index.SplitTarget(splitFrom, s.modulus.N0)

		from, err := load(splitFrom)
		if err != nil {
			return err
		}
		into := bucket.New(int(s.blkSize))
		// target is a brand-new bucket slot past the current end of the key
		// file; its pre-image is the all-zero page it will have if recovery
		// has to roll this commit back. The arena only guarantees zeroed
		// memory on first growth, not after Reset, so this page is cleared
		// explicitly rather than trusting leftover bytes from a prior batch.
		targetPre := s.arena.Alloc(int(s.blkSize))
		for i := range targetPre {
			targetPre[i] = 0
		}
		preImageOffsets[target] = targetPre
		newBit := uint64(1) << s.modulus.N0
		from.Split(into, newBit)
		loadedBuckets[target] = into
		dirty.Mark(target)

		s.modulus = newModulus
		s.bucketCount = newCount
	}

	// Step 2: insert every staged entry into its (possibly just-split)
	// target bucket, spilling overflow to the data file as needed.
	for _, st := range entries {
		idx := s.modulus.BucketFor(st.hash)
		b, err := load(idx)
		if err != nil {
			return err
		}
		if over := b.Insert(st.entry); over {
			if err := s.spillOverflow(b); err != nil {
				return err
			}
		}
	}

	// Step 3-4: write the log header and every touched bucket's pre-image —
	// including the key file header itself at offset 0, so a crash after
	// this point but before step 6 can roll the bucket_count/N0/P triple
	// back along with the bucket pages — then fsync the log before touching
	// the key file.
	logWriter := commitlog.NewWriter(s.files.Log)
	logHeader := codec.LogHeader{
		UID:              s.uid,
		AppNum:           s.appnum,
		PreCommitDataLen: uint64(preCommitDataLen),
		PreCommitKeyLen:  uint64(preCommitKeyLen),
		PreCommitBuckets: uint32(preCommitBucketCount),
	}
	if err := logWriter.WriteHeader(logHeader.Encode()); err != nil {
		return nudberr.New(nudberr.IO, "write log header", err)
	}
	if err := logWriter.WritePreImage(0, headerPreImage); err != nil {
		return nudberr.New(nudberr.IO, "write log header pre-image", err)
	}
	for idx, pre := range preImageOffsets {
		if err := logWriter.WritePreImage(uint64(s.bucketOffset(idx)), pre); err != nil {
			return nudberr.New(nudberr.IO, "write log pre-image", err)
		}
	}
	if err := logWriter.Sync(); err != nil {
		return nudberr.New(nudberr.IO, "sync log", err)
	}

	// Step 5: fsync the data file, so every value and spill record the new
	// bucket pages point at is durable before those pages are written.
	if err := s.files.Data.Sync(); err != nil {
		return nudberr.New(nudberr.IO, "sync data file", err)
	}

	// Step 6: write every touched bucket back to the key file and fsync,
	// in ascending index order so the write pattern (and any log output
	// derived from it) is deterministic rather than following Go's
	// randomized map iteration order.
	for _, idx := range dirty.Indices() {
		b := loadedBuckets[idx]
		page := s.arena.Alloc(int(s.blkSize))
		if err := b.SerializeInto(page); err != nil {
			return nudberr.New(nudberr.IO, "serialize bucket", err)
		}
		if _, err := s.files.Key.WriteAt(page, s.bucketOffset(idx)); err != nil {
			return nudberr.New(nudberr.IO, "write bucket", err)
		}
		s.cache.Put(idx, b)
	}
	// Write the (possibly just-advanced) header back so bucket_count/N0/P
	// survive a close/open cycle instead of reverting to whatever Create
	// wrote once at creation time.
	if _, err := s.files.Key.WriteAt(s.currentKeyHeader().Encode(), 0); err != nil {
		return nudberr.New(nudberr.IO, "write key header", err)
	}
	if err := s.files.Key.Sync(); err != nil {
		return nudberr.New(nudberr.IO, "sync key file", err)
	}

	// Step 7: the commit is now durable in the key/data files; drop the log
	// so a future Open sees nothing to recover.
	if err := s.files.Log.Truncate(0); err != nil {
		return nudberr.New(nudberr.IO, "truncate log", err)
	}
	if err := s.files.Log.Sync(); err != nil {
		return nudberr.New(nudberr.IO, "sync log", err)
	}

	s.liveKeys += uint64(len(entries))
	if s.bloom != nil {
		for _, st := range entries {
			s.bloom.Add(st.key)
		}
	}

	s.log.Infow("nudb: committed", "entries", len(entries), "buckets", len(loadedBuckets), "bucketCount", s.bucketCount)
	return nil
}

// spillOverflow moves b's entries beyond capacity into a freshly allocated
// spill page appended to the data file, chaining it in front of any
// existing spill chain. Dead spill pages displaced by a later bucket split
// are never reclaimed, per spec.md §9's accepted space trade-off.
func (s *Store) spillOverflow(b *bucket.Bucket) error {
	overflow := b.PopOverflow()
	if len(overflow) == 0 {
		return nil
	}
	spillBucket := bucket.New(int(s.blkSize))
	spillBucket.SetSpill(b.Spill())
	for _, e := range overflow {
		spillBucket.Insert(e)
	}
	page, err := spillBucket.Serialize()
	if err != nil {
		return nudberr.New(nudberr.IO, "serialize spill page", err)
	}
	w := &appendWriter{p: s.files.Data}
	rec := codec.DataRecord{Kind: codec.RecordKindSpill, Value: page}
	if err := codec.EncodeDataRecord(w, rec); err != nil {
		return nudberr.New(nudberr.IO, "append spill record", err)
	}
	b.SetSpill(w.recordOffset)
	return nil
}
