package nudb

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seelabs/nudb/pkg/nudberr"
)

func tempPaths(t *testing.T) (dat, key, log string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "s.dat"), filepath.Join(dir, "s.key"), filepath.Join(dir, "s.log")
}

func TestCreateRejectsInvalidParams(t *testing.T) {
	dat, key, log := tempPaths(t)

	cases := []struct {
		name string
		p    CreateParams
		kind nudberr.Kind
	}{
		{"zero key size", CreateParams{KeySize: 0, BlockSize: 64, LoadFactor: 0.5}, nudberr.InvalidKeySize},
		{"block too small", CreateParams{KeySize: 4, BlockSize: 16, LoadFactor: 0.5}, nudberr.InvalidBlockSize},
		{"load factor zero", CreateParams{KeySize: 4, BlockSize: 64, LoadFactor: 0}, nudberr.InvalidArgument},
		{"load factor over one", CreateParams{KeySize: 4, BlockSize: 64, LoadFactor: 1.5}, nudberr.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Create(dat, key, log, tc.p)
			require.Error(t, err)
			require.Equal(t, tc.kind, nudberr.KindOf(err))
		})
	}
}

func TestInsertFlushFetchRoundTrip(t *testing.T) {
	dat, key, log := tempPaths(t)
	require.NoError(t, Create(dat, key, log, CreateParams{
		AppNum: 7, Salt: 99, KeySize: 4, BlockSize: 128, LoadFactor: 0.9,
	}))

	s, err := Open(dat, key, log)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Insert([]byte("key1"), []byte("hello")))
	require.NoError(t, s.Insert([]byte("key2"), []byte("world")))
	require.NoError(t, s.Flush())

	v1, err := s.Fetch([]byte("key1"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(v1))

	v2, err := s.Fetch([]byte("key2"))
	require.NoError(t, err)
	require.Equal(t, "world", string(v2))

	_, err = s.Fetch([]byte("nope"))
	require.Error(t, err)
	require.Equal(t, nudberr.KeyNotFound, nudberr.KindOf(err))
}

func TestFetchSeesUncommittedInserts(t *testing.T) {
	dat, key, log := tempPaths(t)
	require.NoError(t, Create(dat, key, log, CreateParams{
		AppNum: 1, Salt: 1, KeySize: 4, BlockSize: 64, LoadFactor: 0.9,
	}))
	s, err := Open(dat, key, log)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Insert([]byte("stg1"), []byte("staged")))

	v, err := s.Fetch([]byte("stg1"))
	require.NoError(t, err, "fetch should see a staged insert before Flush")
	require.Equal(t, "staged", string(v))
}

func TestInsertCheckedRejectsDuplicate(t *testing.T) {
	dat, key, log := tempPaths(t)
	require.NoError(t, Create(dat, key, log, CreateParams{
		AppNum: 1, Salt: 1, KeySize: 4, BlockSize: 64, LoadFactor: 0.9,
	}))
	s, err := Open(dat, key, log)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.InsertChecked([]byte("dup1"), []byte("first")))
	err = s.InsertChecked([]byte("dup1"), []byte("second"))
	require.Error(t, err)
	require.Equal(t, nudberr.KeyExists, nudberr.KindOf(err))

	require.NoError(t, s.Flush())
	err = s.InsertChecked([]byte("dup1"), []byte("third"))
	require.Error(t, err, "InsertChecked should also probe the committed index, not just pending")
	require.Equal(t, nudberr.KeyExists, nudberr.KindOf(err))

	// Plain Insert never probes, so the same key can be written again.
	require.NoError(t, s.Insert([]byte("dup1"), []byte("fourth")))
}

func TestFlushTriggersSplitUnderLoad(t *testing.T) {
	dat, key, log := tempPaths(t)
	require.NoError(t, Create(dat, key, log, CreateParams{
		AppNum: 1, Salt: 3, KeySize: 4, BlockSize: 64, LoadFactor: 0.5,
	}))
	s, err := Open(dat, key, log)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 64; i++ {
		k := []byte(fmt.Sprintf("%04d", i))
		require.NoError(t, s.Insert(k, []byte("v")))
		require.NoError(t, s.Flush())
	}

	require.Greater(t, s.bucketCount, uint64(1), "bucket table should have split at least once under this load factor")

	for i := 0; i < 64; i++ {
		k := []byte(fmt.Sprintf("%04d", i))
		v, err := s.Fetch(k)
		require.NoError(t, err)
		require.Equal(t, "v", string(v))
	}
}

func TestVerifyAfterCommits(t *testing.T) {
	dat, key, log := tempPaths(t)
	require.NoError(t, Create(dat, key, log, CreateParams{
		AppNum: 1, Salt: 5, KeySize: 4, BlockSize: 64, LoadFactor: 0.9,
	}))
	s, err := Open(dat, key, log)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Insert([]byte(fmt.Sprintf("k%03d", i)), []byte("value")))
	}
	require.NoError(t, s.Flush())

	info, err := s.Verify(1 << 20)
	require.NoError(t, err)
	require.Equal(t, uint64(10), info.KeyCount)
}

func TestInsertRejectsWrongKeyLength(t *testing.T) {
	dat, key, log := tempPaths(t)
	require.NoError(t, Create(dat, key, log, CreateParams{
		AppNum: 1, Salt: 1, KeySize: 4, BlockSize: 64, LoadFactor: 0.9,
	}))
	s, err := Open(dat, key, log)
	require.NoError(t, err)
	defer s.Close()

	err = s.Insert([]byte("ab"), []byte("v")) // wrong length for KeySize=4
	require.Error(t, err)
	require.Equal(t, nudberr.InvalidKeySize, nudberr.KindOf(err))
}
