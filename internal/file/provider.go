// Package file abstracts the positional I/O the store needs from its three
// on-disk files, so the engine never imports "os" directly and tests can
// substitute a fault-injecting decorator.
package file

import "io"

// Provider is the narrow I/O surface the engine needs from one file. It is
// deliberately smaller than os.File: no Name, no Chmod, nothing the engine
// doesn't use.
type Provider interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	// Append writes p at the current end of file and returns the offset it
	// was written at.
	Append(p []byte) (offset int64, err error)
	Truncate(size int64) error
	Sync() error
	Size() (int64, error)
	io.Closer
}

// Set bundles the three files the store operates on.
type Set struct {
	Data Provider
	Key  Provider
	Log  Provider
}

func (s *Set) Close() error {
	var firstErr error
	for _, p := range []Provider{s.Data, s.Key, s.Log} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
