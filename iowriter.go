package nudb

import (
	"fmt"
	"io"

	"github.com/seelabs/nudb/internal/file"
)

// appendWriter adapts file.Provider's atomic Append (for the first write,
// which reserves the record's position) and WriteAt (for everything after,
// including the seek-back CRC patch codec.EncodeDataRecord performs) into
// the io.Writer+io.Seeker pair that encoder expects. Grounded on the same
// need wal.go's Encode has: a writer that can report and rewind its
// position without a second buffering pass.
type appendWriter struct {
	p            file.Provider
	started      bool
	recordOffset uint64
	cur          int64
}

func (w *appendWriter) Write(b []byte) (int, error) {
	if !w.started {
		off, err := w.p.Append(b)
		if err != nil {
			return 0, err
		}
		w.recordOffset = uint64(off)
		w.started = true
		w.cur = off + int64(len(b))
		return len(b), nil
	}
	n, err := w.p.WriteAt(b, w.cur)
	w.cur += int64(n)
	return n, err
}

func (w *appendWriter) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekCurrent:
		if offset != 0 {
			return 0, fmt.Errorf("nudb: appendWriter only supports relative seek of 0")
		}
		return w.cur, nil
	case io.SeekStart:
		w.cur = offset
		return w.cur, nil
	default:
		return 0, fmt.Errorf("nudb: appendWriter does not support whence %d", whence)
	}
}
