// Package recovery implements crash rollback: replaying the commit log's
// bucket pre-images back into the key file and truncating the data and key
// files to the sizes they had before the interrupted commit began. Grounded
// directly on original_source/test/recover.cpp's do_recover, which calls
// recover(...) followed by verify(...) and then erases the log. Run performs
// only the recover step; the store's Open truncates the log file to zero
// length once Run succeeds, and does not run a verify pass.
package recovery

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/seelabs/nudb/internal/codec"
	"github.com/seelabs/nudb/internal/commitlog"
	"github.com/seelabs/nudb/internal/file"
	"github.com/seelabs/nudb/pkg/nudberr"
)

const logHeaderBytes = codec.LogHeaderSize

// Run replays every bucket pre-image recorded in logFile back into keyFile,
// then truncates dataFile and keyFile to the lengths the log header
// recorded before the interrupted commit. It is idempotent: running it
// again on an already-recovered (and not yet erased) log reproduces the
// same end state, since every step is either a blind overwrite or a
// monotonic truncate.
func Run(dataFile, keyFile, logFile file.Provider, expectUID uuid.UUID) error {
	size, err := logFile.Size()
	if err != nil {
		return fmt.Errorf("recovery: stat log: %w", err)
	}
	if size == 0 {
		return nil // no interrupted commit to recover
	}
	if size < int64(logHeaderBytes) {
		return nudberr.New(nudberr.CorruptRecord, "log file shorter than header", nil)
	}

	headerBuf := make([]byte, logHeaderBytes)
	if _, err := logFile.ReadAt(headerBuf, 0); err != nil {
		return fmt.Errorf("recovery: read log header: %w", err)
	}
	header, err := codec.DecodeLogHeader(headerBuf)
	if err != nil {
		return nudberr.New(nudberr.CorruptRecord, "log header decode failed", err)
	}
	if header.UID != expectUID {
		return nudberr.New(nudberr.UIDMismatch, "log file UID does not match data/key files", nil).
			WithDetail("logUID", header.UID).WithDetail("expectUID", expectUID)
	}

	reader := commitlog.OpenReaderAt(logFile, int64(logHeaderBytes))

	for preImage, err := range reader.Iter() {
		if err != nil {
			return nudberr.New(nudberr.CorruptRecord, "log replay failed", err)
		}
		if _, werr := keyFile.WriteAt(preImage.Page, int64(preImage.Offset)); werr != nil {
			return fmt.Errorf("recovery: restore bucket at %d: %w", preImage.Offset, werr)
		}
	}

	if err := keyFile.Truncate(int64(header.PreCommitKeyLen)); err != nil {
		return fmt.Errorf("recovery: truncate key file: %w", err)
	}
	if err := dataFile.Truncate(int64(header.PreCommitDataLen)); err != nil {
		return fmt.Errorf("recovery: truncate data file: %w", err)
	}
	if err := keyFile.Sync(); err != nil {
		return fmt.Errorf("recovery: sync key file: %w", err)
	}
	if err := dataFile.Sync(); err != nil {
		return fmt.Errorf("recovery: sync data file: %w", err)
	}

	return nil
}
