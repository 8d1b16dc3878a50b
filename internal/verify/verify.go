// Package verify implements a read-only consistency walk of the key and
// data files: every bucket and its spill chain is read back, keys re-hashed
// to confirm they live in the bucket the current modulus says they should,
// and summary statistics accumulated. Grounded on
// original_source/test/recover.cpp's verify<Hasher>(info, dp, kp,
// memoryBudget, progress, ec) call shape and
// original_source/benchmark/benchmark.cpp's use of a fixed memory budget
// argument.
package verify

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/seelabs/nudb/internal/bucket"
	"github.com/seelabs/nudb/internal/codec"
	"github.com/seelabs/nudb/internal/file"
	"github.com/seelabs/nudb/internal/hash"
	"github.com/seelabs/nudb/internal/index"
	"github.com/seelabs/nudb/pkg/nudberr"
)

// Info summarizes one verify pass, matching spec.md §6's verify output
// fields.
type Info struct {
	Version     uint16
	UID         uuid.UUID
	AppNum      uint64
	Salt        uint64
	KeySize     uint16
	BlockSize   uint16
	LoadFactor  float32
	BucketCount uint64
	KeyCount    uint64
	SpillCount  uint64
	DataBytes   uint64
	// Histogram maps spill-chain depth to the number of buckets with that
	// depth; index 0 is buckets with no spill.
	Histogram []uint64
}

// dataReader adapts the data file provider to bucket.DataReader for key
// re-confirmation during the walk.
type dataReader struct {
	data file.Provider
}

func (d dataReader) ReadKeyAt(offset uint64, keySize int) ([]byte, error) {
	// A data record's key begins after CRC(4)+totalLen(8)+kind(1)+keyLen(4).
	const keyOff = 4 + 8 + 1 + 4
	buf := make([]byte, keySize)
	if _, err := d.data.ReadAt(buf, int64(offset)+keyOff); err != nil {
		return nil, err
	}
	return buf, nil
}

// Run walks every bucket in keyFile, following spill chains in dataFile,
// and returns accumulated statistics. The walk always streams one bucket
// page at a time and keeps no previously read page; memoryBudget does not
// change this and is otherwise unused.
func Run(dataFile, keyFile file.Provider, hasher hash.Hasher, memoryBudget int64) (Info, error) {
	var info Info

	keySize, err := keyFile.Size()
	if err != nil {
		return info, fmt.Errorf("verify: stat key file: %w", err)
	}
	if keySize < codec.KeyHeaderSize {
		return info, nudberr.New(nudberr.ShortRead, "key file shorter than header", nil)
	}

	headerBuf := make([]byte, codec.KeyHeaderSize)
	if _, err := keyFile.ReadAt(headerBuf, 0); err != nil {
		return info, fmt.Errorf("verify: read key header: %w", err)
	}
	kh, err := codec.DecodeKeyHeader(headerBuf)
	if err != nil {
		return info, nudberr.New(nudberr.CorruptRecord, "key header decode failed", err)
	}

	info.Version = codec.Version
	info.UID = kh.UID
	info.AppNum = kh.AppNum
	info.Salt = kh.Salt
	info.KeySize = kh.KeySize
	info.BlockSize = kh.BlockSize
	info.LoadFactor = float32(kh.LoadFactor) / float32(1<<16)
	info.BucketCount = kh.BucketCount
	info.Histogram = make([]uint64, 1)

	modulus := index.Modulus{N0: kh.N0, P: kh.P}
	dr := dataReader{data: dataFile}

	pageBuf := make([]byte, kh.BlockSize)
	for i := uint64(0); i < kh.BucketCount; i++ {
		off := int64(codec.KeyHeaderSize) + int64(i)*int64(kh.BlockSize)
		if _, err := keyFile.ReadAt(pageBuf, off); err != nil {
			return info, fmt.Errorf("verify: read bucket %d: %w", i, err)
		}
		b, err := bucket.Deserialize(pageBuf, int(kh.BlockSize))
		if err != nil {
			return info, nudberr.New(nudberr.CorruptRecord, fmt.Sprintf("bucket %d corrupt", i), err)
		}

		depth := 0
		cur := b
		for {
			for _, e := range cur.Entries() {
				info.KeyCount++
				info.DataBytes += uint64(e.Size)
				key, err := dr.ReadKeyAt(e.Offset, int(kh.KeySize))
				if err != nil {
					return info, fmt.Errorf("verify: read key at %d: %w", e.Offset, err)
				}
				h := hasher.Sum64(key, kh.Salt)
				if h != e.Hash {
					return info, nudberr.New(nudberr.CorruptRecord, "stored hash does not match re-hashed key", nil).
						WithOffset(int64(e.Offset))
				}
				if modulus.BucketFor(h) != i {
					return info, nudberr.New(nudberr.CorruptRecord, "key found in wrong bucket", nil).
						WithDetail("bucket", i).WithDetail("expected", modulus.BucketFor(h))
				}
			}
			if cur.Spill() == 0 {
				break
			}
			info.SpillCount++
			depth++
			rec, err := readSpillRecord(dataFile, cur.Spill())
			if err != nil {
				return info, fmt.Errorf("verify: read spill at %d: %w", cur.Spill(), err)
			}
			cur, err = bucket.Deserialize(rec, int(kh.BlockSize))
			if err != nil {
				return info, nudberr.New(nudberr.CorruptRecord, "spill page corrupt", err)
			}
		}
		for depth >= len(info.Histogram) {
			info.Histogram = append(info.Histogram, 0)
		}
		info.Histogram[depth]++
	}

	return info, nil
}

func readSpillRecord(dataFile file.Provider, offset uint64) ([]byte, error) {
	r := &offsetReader{p: dataFile, off: int64(offset)}
	rec, err := codec.DecodeDataRecord(r)
	if err != nil {
		return nil, err
	}
	if rec.Kind != codec.RecordKindSpill {
		return nil, nudberr.New(nudberr.CorruptRecord, "expected spill record", nil)
	}
	return rec.Value, nil
}

type offsetReader struct {
	p   file.Provider
	off int64
}

func (r *offsetReader) Read(b []byte) (int, error) {
	n, err := r.p.ReadAt(b, r.off)
	r.off += int64(n)
	return n, err
}
