package commitlog

import "github.com/seelabs/nudb/internal/file"

// seqReader adapts a file.Provider's ReadAt into a sequential io.Reader for
// DecodePreImage, mirroring seqWriter's role on the write side.
type seqReader struct {
	p   file.Provider
	off int64
}

func (s *seqReader) Read(b []byte) (int, error) {
	n, err := s.p.ReadAt(b, s.off)
	s.off += int64(n)
	return n, err
}

// OpenReader returns a Reader over the full contents of p.
func OpenReader(p file.Provider) *Reader {
	return NewReader(&seqReader{p: p})
}

// OpenReaderAt returns a Reader starting at the given byte offset of p, used
// to skip a header already consumed separately.
func OpenReaderAt(p file.Provider, offset int64) *Reader {
	return NewReader(&seqReader{p: p, off: offset})
}
