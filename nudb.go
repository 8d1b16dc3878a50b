// Package nudb implements an append-only, insert-only key/value store: an
// on-disk linear-hashing index (the key file) over fixed-size bucket pages,
// a data file holding values and spill overflow records, and a
// write-ahead log of bucket pre-images that makes every commit crash-safe.
//
// The design is a Go rendition of the NuDB C++ library (seelabs/nudb):
// single writer, many concurrent readers, no in-place updates or deletes,
// and no space reclamation for spill records displaced by a bucket split
// (see DESIGN.md's Open Question notes).
package nudb

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/seelabs/nudb/internal/codec"
	"github.com/seelabs/nudb/internal/file"
	"github.com/seelabs/nudb/pkg/nudberr"
)

const (
	minBlockSize = 32
	maxKeySize   = 1 << 16
)

// CreateParams are the on-disk invariants fixed for the lifetime of a store,
// matching spec.md §4.1's creation parameters exactly.
type CreateParams struct {
	AppNum     uint64
	Salt       uint64
	KeySize    uint16
	BlockSize  uint16
	LoadFactor float32 // fraction in (0, 1]; bucket splits when exceeded
}

func (p CreateParams) validate() error {
	if p.KeySize == 0 {
		return nudberr.New(nudberr.InvalidKeySize, "key_size must be non-zero", nil)
	}
	if p.BlockSize < minBlockSize {
		return nudberr.New(nudberr.InvalidBlockSize, fmt.Sprintf("block_size must be >= %d", minBlockSize), nil)
	}
	if p.LoadFactor <= 0 || p.LoadFactor > 1 {
		return nudberr.New(nudberr.InvalidArgument, "load_factor must be in (0, 1]", nil)
	}
	return nil
}

// Create initializes a new, empty store at the three given paths. It fails
// with nudberr.AlreadyExists if any of the three files already exists, per
// spec.md §4.1 ("The create operation fails if any file already exists") —
// it never truncates an existing store out from under its owner.
func Create(dataPath, keyPath, logPath string, p CreateParams) error {
	if err := p.validate(); err != nil {
		return err
	}

	id := uuid.New()

	df, err := file.CreateNative(dataPath)
	if err != nil {
		return createErr("data file", dataPath, err)
	}
	defer df.Close()

	kf, err := file.CreateNative(keyPath)
	if err != nil {
		os.Remove(dataPath)
		return createErr("key file", keyPath, err)
	}
	defer kf.Close()

	dh := codec.DataHeader{UID: id, AppNum: p.AppNum, Salt: p.Salt, KeySize: p.KeySize}
	if _, err := df.Append(dh.Encode()); err != nil {
		return nudberr.New(nudberr.IO, "write data header", err).WithPath(dataPath)
	}
	if err := df.Sync(); err != nil {
		return nudberr.New(nudberr.IO, "sync data file", err).WithPath(dataPath)
	}

	kh := codec.KeyHeader{
		UID:         id,
		AppNum:      p.AppNum,
		Salt:        p.Salt,
		KeySize:     p.KeySize,
		BlockSize:   p.BlockSize,
		LoadFactor:  uint32(p.LoadFactor * float32(1<<16)),
		BucketCount: 1,
		N0:          0,
		P:           0,
	}
	if _, err := kf.Append(kh.Encode()); err != nil {
		return nudberr.New(nudberr.IO, "write key header", err).WithPath(keyPath)
	}
	// An all-zero page already encodes count=0, spill=0: no entries, no
	// overflow chain.
	emptyBucket := make([]byte, p.BlockSize)
	if _, err := kf.Append(emptyBucket); err != nil {
		return nudberr.New(nudberr.IO, "write initial bucket", err).WithPath(keyPath)
	}
	if err := kf.Sync(); err != nil {
		return nudberr.New(nudberr.IO, "sync key file", err).WithPath(keyPath)
	}

	// The log file starts out empty; its presence with zero length is what
	// lets Open distinguish "no interrupted commit" from "recovery needed".
	lf, err := file.CreateNative(logPath)
	if err != nil {
		os.Remove(dataPath)
		os.Remove(keyPath)
		return createErr("log file", logPath, err)
	}
	defer lf.Close()

	return nil
}

// createErr classifies a CreateNative failure: os.ErrExist becomes
// nudberr.AlreadyExists (the §7 kind reserved for this), anything else is a
// plain IO error.
func createErr(what, path string, err error) error {
	if os.IsExist(err) {
		return nudberr.New(nudberr.AlreadyExists, fmt.Sprintf("%s already exists", what), err).WithPath(path)
	}
	return nudberr.New(nudberr.IO, fmt.Sprintf("create %s", what), err).WithPath(path)
}
