package file

import (
	"fmt"
	"os"
	"sync"
)

// Native wraps a single *os.File, opened once (O_RDWR|O_CREATE|O_EXCL by
// CreateNative, O_RDWR by OpenNative), and tracks the append offset itself
// rather than relying on O_APPEND (O_APPEND would race with WriteAt on the
// same fd from Go's perspective, since append offset and the positional
// writes share no lock without one).
type Native struct {
	mu   sync.Mutex
	f    *os.File
	size int64
}

// CreateNative creates path, failing if it already exists: a store's create
// operation must never silently overwrite an existing one.
func CreateNative(path string) (*Native, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &Native{f: f}, nil
}

// OpenNative opens an existing file for read/write.
func OpenNative(path string) (*Native, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("nudb/file: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("nudb/file: stat %s: %w", path, err)
	}
	return &Native{f: f, size: info.Size()}, nil
}

func (n *Native) ReadAt(p []byte, off int64) (int, error) {
	return n.f.ReadAt(p, off)
}

func (n *Native) WriteAt(p []byte, off int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.f.WriteAt(p, off)
	if end := off + int64(c); end > n.size {
		n.size = end
	}
	return c, err
}

func (n *Native) Append(p []byte) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	off := n.size
	c, err := n.f.WriteAt(p, off)
	n.size += int64(c)
	return off, err
}

func (n *Native) Truncate(size int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.f.Truncate(size); err != nil {
		return err
	}
	n.size = size
	return nil
}

func (n *Native) Sync() error {
	return n.f.Sync()
}

func (n *Native) Size() (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.size, nil
}

func (n *Native) Close() error {
	return n.f.Close()
}
