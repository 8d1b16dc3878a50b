package commitlog

import (
	"fmt"
	"io"

	"github.com/seelabs/nudb/internal/file"
)

// seqWriter adapts a file.Provider's positional WriteAt into the
// sequential io.Writer+io.Seeker that EncodePreImage needs for its
// seek-back CRC patch, while still routing every write through the
// Provider so a file.Fault wrapper sees (and can fail) each one — the log
// file gets the same crash-injection coverage as the data and key files.
type seqWriter struct {
	p   file.Provider
	off int64
}

func newSeqWriter(p file.Provider, startOffset int64) *seqWriter {
	return &seqWriter{p: p, off: startOffset}
}

func (s *seqWriter) Write(b []byte) (int, error) {
	n, err := s.p.WriteAt(b, s.off)
	s.off += int64(n)
	return n, err
}

func (s *seqWriter) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.off = offset
	case io.SeekCurrent:
		s.off += offset
	case io.SeekEnd:
		size, err := s.p.Size()
		if err != nil {
			return 0, err
		}
		s.off = size + offset
	default:
		return 0, fmt.Errorf("commitlog: invalid whence %d", whence)
	}
	return s.off, nil
}

// Writer appends a header and a sequence of bucket pre-images to the log
// file, syncing after each logical unit the way wal/wal_writer.go's loop
// syncs after every encoded entry.
type Writer struct {
	p  file.Provider
	sw *seqWriter
}

// NewWriter opens a log writer at the start of p, which must be empty.
func NewWriter(p file.Provider) *Writer {
	return &Writer{p: p, sw: newSeqWriter(p, 0)}
}

func (w *Writer) WriteHeader(h []byte) error {
	if _, err := w.sw.Write(h); err != nil {
		return err
	}
	return w.p.Sync()
}

func (w *Writer) WritePreImage(offset uint64, page []byte) error {
	if err := EncodePreImage(w.sw, PreImage{Offset: offset, Page: page}); err != nil {
		return err
	}
	return w.p.Sync()
}

func (w *Writer) Sync() error {
	return w.p.Sync()
}
