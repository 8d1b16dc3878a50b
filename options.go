package nudb

import "go.uber.org/zap"

// config holds the runtime-only knobs governing a Store after it has been
// created or opened: cache sizing, logging, and the optional negative
// filter. Creation parameters (appnum, salt, key_size, block_size,
// load_factor) are immutable on-disk invariants and are passed directly to
// Create instead, following segmentmanager's split between construction
// arguments and DiskSegmentManagerOption-style runtime options.
type config struct {
	cacheSize     int
	arenaSize     int
	bloomEnabled  bool
	bloomExpected uint
	logger        *zap.SugaredLogger
}

func defaultConfig() config {
	return config{
		cacheSize:     1024,
		arenaSize:     64 << 10,
		bloomEnabled:  false,
		bloomExpected: 1 << 20,
		logger:        zap.NewNop().Sugar(),
	}
}

// Option configures a Store at Open time, grounded on
// iamNilotpal/ignite's pkg/options.OptionFunc and the teacher's own
// segmentmanager.DiskSegmentManagerOption.
type Option func(*config)

// WithCacheSize bounds the number of clean buckets held in memory.
func WithCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithArenaSize sets the initial size of the per-commit scratch arena.
func WithArenaSize(n int) Option {
	return func(c *config) { c.arenaSize = n }
}

// WithBloomFilter enables the negative existence filter sized for
// expectedKeys entries, grounded on sst/writer.go's per-segment bloom
// filter.
func WithBloomFilter(expectedKeys uint) Option {
	return func(c *config) {
		c.bloomEnabled = true
		c.bloomExpected = expectedKeys
	}
}

// WithLogger attaches a zap.SugaredLogger; a nil value is ignored.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}
