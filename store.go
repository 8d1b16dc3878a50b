package nudb

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seelabs/nudb/internal/cache"
	"github.com/seelabs/nudb/internal/codec"
	"github.com/seelabs/nudb/internal/file"
	"github.com/seelabs/nudb/internal/hash"
	"github.com/seelabs/nudb/internal/index"
	"github.com/seelabs/nudb/internal/pending"
	"github.com/seelabs/nudb/internal/recovery"
	"github.com/seelabs/nudb/internal/verify"
	"github.com/seelabs/nudb/pkg/nudberr"
)

// Store is an open handle to a nudb instance. One Store serializes its own
// commits (single writer) but allows any number of concurrent Fetch calls,
// matching spec.md §5's concurrency model. The commit-time exclusive
// section is grounded on segmentmanager/disk.go's mu sync.Mutex guarding
// active-segment state, generalized here to guard commit/split state
// instead of segment rotation.
type Store struct {
	cfg config
	log *zap.SugaredLogger

	files         *file.Set
	hasher        hash.Hasher
	uid           uuid.UUID
	appnum        uint64
	salt          uint64
	keySize       uint16
	blkSize       uint16
	loadFactorVal float32

	// commitMu serializes commits; state below it changes only while held.
	commitMu    sync.Mutex
	modulus     index.Modulus
	bucketCount uint64
	// liveKeys approximates the number of committed entries, used only to
	// decide when a bucket split is due. It is an in-memory estimate reset
	// to 0 on every Open rather than recomputed from a full Verify walk, so
	// a store reopened many times may split a little earlier or later than
	// one kept open continuously — never incorrectly, since Insert/Fetch
	// correctness does not depend on exactly when a split happens.
	liveKeys uint64

	pending *pending.Map
	cache   *cache.BucketCache
	arena   *cache.Arena
	bloom   *cache.NegativeFilter

	closed atomic.Bool
}

// Open opens an existing store created by Create, running crash recovery
// first if the log file holds an interrupted commit.
func Open(dataPath, keyPath, logPath string, opts ...Option) (*Store, error) {
	df, err := file.OpenNative(dataPath)
	if err != nil {
		return nil, nudberr.New(nudberr.NotFound, "open data file", err).WithPath(dataPath)
	}
	kf, err := file.OpenNative(keyPath)
	if err != nil {
		df.Close()
		return nil, nudberr.New(nudberr.NotFound, "open key file", err).WithPath(keyPath)
	}
	lf, err := file.OpenNative(logPath)
	if err != nil {
		df.Close()
		kf.Close()
		return nil, nudberr.New(nudberr.NotFound, "open log file", err).WithPath(logPath)
	}

	return openWithFiles(df, kf, lf, dataPath, keyPath, logPath, opts...)
}

// openWithFiles contains Open's logic over already-opened providers. It is
// factored out so tests can drive recovery with internal/file.Fault-wrapped
// providers instead of plain os.File-backed ones, the way
// original_source/test/recover.cpp drives recovery through a fail_file.
func openWithFiles(df, kf, lf file.Provider, dataPath, keyPath, logPath string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger

	dataHeaderBuf := make([]byte, codec.DataHeaderSize)
	if _, err := df.ReadAt(dataHeaderBuf, 0); err != nil {
		closeAll(df, kf, lf)
		return nil, nudberr.New(nudberr.ShortRead, "read data header", err).WithPath(dataPath)
	}
	dh, err := codec.DecodeDataHeader(dataHeaderBuf)
	if err != nil {
		closeAll(df, kf, lf)
		return nil, nudberr.New(nudberr.CorruptRecord, "decode data header", err).WithPath(dataPath)
	}

	keyHeaderBuf := make([]byte, codec.KeyHeaderSize)
	if _, err := kf.ReadAt(keyHeaderBuf, 0); err != nil {
		closeAll(df, kf, lf)
		return nil, nudberr.New(nudberr.ShortRead, "read key header", err).WithPath(keyPath)
	}
	kh, err := codec.DecodeKeyHeader(keyHeaderBuf)
	if err != nil {
		closeAll(df, kf, lf)
		return nil, nudberr.New(nudberr.CorruptRecord, "decode key header", err).WithPath(keyPath)
	}

	if kh.UID != dh.UID {
		closeAll(df, kf, lf)
		return nil, nudberr.New(nudberr.UIDMismatch, "data and key file UIDs do not match", nil)
	}
	if kh.KeySize != dh.KeySize {
		closeAll(df, kf, lf)
		return nil, nudberr.New(nudberr.InvalidKeySize, "data and key file key_size do not match", nil)
	}

	logSize, err := lf.Size()
	if err != nil {
		closeAll(df, kf, lf)
		return nil, nudberr.New(nudberr.IO, "stat log file", err).WithPath(logPath)
	}
	if logSize > 0 {
		log.Infow("nudb: recovering interrupted commit", "log", logPath, "size", logSize)
		if err := recovery.Run(df, kf, lf, kh.UID); err != nil {
			closeAll(df, kf, lf)
			return nil, err
		}
		if err := lf.Truncate(0); err != nil {
			closeAll(df, kf, lf)
			return nil, nudberr.New(nudberr.IO, "truncate log after recovery", err).WithPath(logPath)
		}
		if err := lf.Sync(); err != nil {
			closeAll(df, kf, lf)
			return nil, nudberr.New(nudberr.IO, "sync log after recovery", err).WithPath(logPath)
		}
		// Re-read the key header: every commit logs the header as a
		// pre-image at offset 0, so recovery may have restored an older
		// bucket_count/N0/P along with the bucket pages.
		if _, err := kf.ReadAt(keyHeaderBuf, 0); err != nil {
			closeAll(df, kf, lf)
			return nil, nudberr.New(nudberr.ShortRead, "re-read key header after recovery", err).WithPath(keyPath)
		}
		kh, err = codec.DecodeKeyHeader(keyHeaderBuf)
		if err != nil {
			closeAll(df, kf, lf)
			return nil, nudberr.New(nudberr.CorruptRecord, "decode key header after recovery", err).WithPath(keyPath)
		}
	}

	bucketCache, err := cache.NewBucketCache(cfg.cacheSize)
	if err != nil {
		closeAll(df, kf, lf)
		return nil, fmt.Errorf("nudb: create bucket cache: %w", err)
	}

	var bloom *cache.NegativeFilter
	if cfg.bloomEnabled {
		bloom = cache.NewNegativeFilter(cfg.bloomExpected, 0.01)
	}

	s := &Store{
		cfg:           cfg,
		log:           log,
		files:         &file.Set{Data: df, Key: kf, Log: lf},
		hasher:        hash.XXHash{},
		uid:           kh.UID,
		appnum:        kh.AppNum,
		salt:          kh.Salt,
		keySize:       kh.KeySize,
		blkSize:       kh.BlockSize,
		loadFactorVal: float32(kh.LoadFactor) / float32(1<<16),
		modulus:       index.Modulus{N0: kh.N0, P: kh.P},
		bucketCount:   kh.BucketCount,
		pending:       pending.New(),
		cache:         bucketCache,
		arena:         cache.NewArena(cfg.arenaSize),
		bloom:         bloom,
	}
	log.Infow("nudb: opened", "data", dataPath, "key", keyPath, "buckets", s.bucketCount)
	return s, nil
}

// currentKeyHeader builds the on-disk key header reflecting this Store's
// in-memory modulus/bucket-count state. Flush calls this both before and
// after an incremental split to capture the pre-image and the post-commit
// header it writes back, so the linear-hashing index state persists exactly
// like spec.md §9 requires instead of being rederived (wrongly, to the
// stale value) from whatever was last written at Create.
func (s *Store) currentKeyHeader() codec.KeyHeader {
	return codec.KeyHeader{
		UID:         s.uid,
		AppNum:      s.appnum,
		Salt:        s.salt,
		KeySize:     s.keySize,
		BlockSize:   s.blkSize,
		LoadFactor:  uint32(s.loadFactorVal * float32(1<<16)),
		BucketCount: s.bucketCount,
		N0:          s.modulus.N0,
		P:           s.modulus.P,
	}
}

func closeAll(providers ...file.Provider) {
	for _, p := range providers {
		_ = p.Close()
	}
}

// Close flushes any staged inserts and releases the underlying files.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.Flush(); err != nil {
		return err
	}
	return s.files.Close()
}

// Verify runs a read-only consistency walk over this store's files.
func (s *Store) Verify(memoryBudget int64) (verify.Info, error) {
	return verify.Run(s.files.Data, s.files.Key, s.hasher, memoryBudget)
}

func validateKey(key []byte, keySize uint16) error {
	if len(key) != int(keySize) {
		return nudberr.New(nudberr.InvalidKeySize, fmt.Sprintf("key must be %d bytes, got %d", keySize, len(key)), nil)
	}
	return nil
}
