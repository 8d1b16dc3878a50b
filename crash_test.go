package nudb

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seelabs/nudb/internal/file"
	"github.com/seelabs/nudb/pkg/nudberr"
)

// openFaulty opens the three files at the given paths through a shared
// file.Counter, so "the Nth I/O operation" counts across data, key, and log
// together the way a real crash could land on any of them.
func openFaulty(t *testing.T, dir string, counter *file.Counter) (df, kf, lf *file.Fault) {
	t.Helper()
	nd, err := file.OpenNative(filepath.Join(dir, "store.dat"))
	require.NoError(t, err)
	nk, err := file.OpenNative(filepath.Join(dir, "store.key"))
	require.NoError(t, err)
	nl, err := file.OpenNative(filepath.Join(dir, "store.log"))
	require.NoError(t, err)
	return file.NewFault(nd, counter), file.NewFault(nk, counter), file.NewFault(nl, counter)
}

// causedByFault reports whether err's chain holds the injected
// nudberr.Failure. The engine wraps provider errors in its own
// *nudberr.Error (ShortRead, IO, ...), so the injected kind is never the
// outermost one nudberr.KindOf reports.
func causedByFault(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if e, ok := err.(*nudberr.Error); ok && e.Kind() == nudberr.Failure {
			return true
		}
	}
	return false
}

// TestCommitSurvivesInjectedFaultAtEveryStep is grounded directly on
// original_source/test/recover.cpp's test_recover: the Nth I/O operation of
// a commit is made to fail, for every N up to the point a commit finally
// succeeds end to end, and after every failure recovery must restore the
// store to a consistent, openable state with no partial bucket writes
// visible.
func TestCommitSurvivesInjectedFaultAtEveryStep(t *testing.T) {
	for n := 1; n <= 200; n++ {
		dir := t.TempDir()
		dataPath := filepath.Join(dir, "store.dat")
		keyPath := filepath.Join(dir, "store.key")
		logPath := filepath.Join(dir, "store.log")

		require.NoError(t, Create(dataPath, keyPath, logPath, CreateParams{
			AppNum: 1, Salt: 42, KeySize: 4, BlockSize: 64, LoadFactor: 0.9,
		}))

		counter := file.NewCounter(n)
		df, kf, lf := openFaulty(t, dir, counter)

		s, err := openWithFiles(df, kf, lf, dataPath, keyPath, logPath)
		if err != nil {
			require.True(t, causedByFault(err), "unexpected non-fault error opening at n=%d: %v", n, err)
			continue
		}

		insertErr := s.Insert([]byte("key1"), []byte("value-one"))
		var flushErr error
		if insertErr == nil {
			flushErr = s.Flush()
		}
		workErr := insertErr
		if workErr == nil {
			workErr = flushErr
		}

		if workErr != nil {
			require.True(t, causedByFault(workErr), "unexpected non-fault error at n=%d: %v", n, workErr)
			// The process "crashed": close the raw providers without
			// flushing again, then reopen normally (triggering recovery)
			// and confirm the store comes back in a verifiable state.
			df.Close()
			kf.Close()
			lf.Close()

			s2, err := Open(dataPath, keyPath, logPath)
			require.NoError(t, err, "reopen after injected fault at n=%d must recover cleanly", n)
			_, err = s2.Verify(1 << 20)
			require.NoError(t, err, "verify after recovery at n=%d", n)
			require.NoError(t, s2.Close())
			continue
		}

		// The commit succeeded with no injected fault: the store is fully
		// durable, the property this loop exists to prove. The value is read
		// back through a fresh, fault-free handle: a read through the
		// fault-wrapped providers would itself be operation n and fail.
		require.NoError(t, s.Close())
		s2, err := Open(dataPath, keyPath, logPath)
		require.NoError(t, err)
		value, err := s2.Fetch([]byte("key1"))
		require.NoError(t, err)
		require.Equal(t, "value-one", string(value))
		require.NoError(t, s2.Close())
		return
	}

	t.Fatal("commit never completed without an injected fault within 200 operations")
}
