package file

import (
	"sync/atomic"

	"github.com/seelabs/nudb/pkg/nudberr"
)

// Fault wraps a Provider and fails the Nth I/O operation performed across
// every Fault instance sharing the same Counter, returning
// nudberr.Kind=Failure. Grounded directly on the NuDB C++ test suite's
// fail_file/fail_counter: commit and recovery are driven in a loop with
// increasing N until every operation in the path has been exercised as the
// failure point, which is how crash-recovery idempotence gets proven without
// a real power-failure harness.
type Fault struct {
	inner   Provider
	counter *Counter
}

// Counter is shared by every Fault wrapping files that belong to the same
// logical operation (data/key/log), so "the Nth operation" counts across
// all three files the way a real crash would interrupt whichever file
// happened to be written to Nth.
type Counter struct {
	n     int64 // 1-based operation number that should fail; 0 disables
	count int64
}

// NewCounter returns a Counter that fails the nth operation across every
// Provider it is attached to. n <= 0 disables fault injection entirely.
func NewCounter(n int) *Counter {
	return &Counter{n: int64(n)}
}

func (c *Counter) next() error {
	if c.n <= 0 {
		return nil
	}
	if atomic.AddInt64(&c.count, 1) == c.n {
		return nudberr.New(nudberr.Failure, "injected fault", nil)
	}
	return nil
}

// Count returns the number of operations observed so far.
func (c *Counter) Count() int64 {
	return atomic.LoadInt64(&c.count)
}

// NewFault wraps inner so every operation is checked against counter.
func NewFault(inner Provider, counter *Counter) *Fault {
	return &Fault{inner: inner, counter: counter}
}

func (f *Fault) ReadAt(p []byte, off int64) (int, error) {
	if err := f.counter.next(); err != nil {
		return 0, err
	}
	return f.inner.ReadAt(p, off)
}

func (f *Fault) WriteAt(p []byte, off int64) (int, error) {
	if err := f.counter.next(); err != nil {
		return 0, err
	}
	return f.inner.WriteAt(p, off)
}

func (f *Fault) Append(p []byte) (int64, error) {
	if err := f.counter.next(); err != nil {
		return 0, err
	}
	return f.inner.Append(p)
}

func (f *Fault) Truncate(size int64) error {
	if err := f.counter.next(); err != nil {
		return err
	}
	return f.inner.Truncate(size)
}

func (f *Fault) Sync() error {
	if err := f.counter.next(); err != nil {
		return err
	}
	return f.inner.Sync()
}

func (f *Fault) Size() (int64, error) {
	return f.inner.Size()
}

func (f *Fault) Close() error {
	return f.inner.Close()
}
