// Package commitlog implements the write-ahead log used during commit: a
// header identifying the pre-commit file sizes, followed by one pre-image
// record per bucket the commit is about to modify. If the process dies
// mid-commit, internal/recovery replays these pre-images to undo whatever
// partial write happened and truncates the data/key files back to the sizes
// the header recorded.
//
// The writer/reader pair is grounded directly on the teacher's
// wal/wal_writer.go and wal/wal_reader.go: open once, seek to end instead of
// O_APPEND (O_APPEND is incompatible with the seek-back CRC patch in
// EncodePreImage), and an iter.Seq2-based reader.
package commitlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"iter"

	"github.com/seelabs/nudb/internal/codec"
)

// PreImage is one bucket page as it existed before the commit touched it,
// tagged with the file offset it belongs at so recovery can write it back
// verbatim.
type PreImage struct {
	Offset uint64
	Page   []byte
}

// EncodePreImage writes one pre-image record to w, which must also be an
// io.Seeker. Format mirrors wal.go's Log.Encode: a CRC placeholder, the
// length-prefixed payload, then a seek back to patch in the real checksum.
func EncodePreImage(w io.Writer, p PreImage) error {
	seeker, ok := w.(io.Seeker)
	if !ok {
		return fmt.Errorf("commitlog: writer must be seekable")
	}

	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)

	pageLen := uint32(len(p.Page))
	payloadLen := 8 + 4 + uint64(pageLen)
	totalLen := 8 + payloadLen

	if err := binary.Write(w, binary.LittleEndian, uint32(0xFFFFFFFF)); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, totalLen); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, p.Offset); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, pageLen); err != nil {
		return err
	}
	if _, err := mw.Write(p.Page); err != nil {
		return err
	}

	pos, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := seeker.Seek(pos-int64(totalLen)-4, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, crc.Sum32()); err != nil {
		return err
	}
	_, err = seeker.Seek(pos, io.SeekStart)
	return err
}

const logInvalidCRC = uint32(0xFFFFFFFF)

// DecodePreImage reads one pre-image record. io.EOF (including the
// unwritten-CRC-placeholder sentinel wal.go also checks for) means end of
// log.
func DecodePreImage(r io.Reader) (PreImage, error) {
	var p PreImage

	var storedCRC uint32
	if err := binary.Read(r, binary.LittleEndian, &storedCRC); err != nil {
		return p, cleanEOF(err)
	}
	if storedCRC == logInvalidCRC {
		return p, io.EOF
	}

	var totalLen uint64
	if err := binary.Read(r, binary.LittleEndian, &totalLen); err != nil {
		return p, cleanEOF(err)
	}
	if totalLen < 20 || totalLen > codec.MaxRecordSize {
		return p, fmt.Errorf("commitlog: %w", codec.ErrCorruptRecord)
	}

	payload := make([]byte, totalLen)
	binary.LittleEndian.PutUint64(payload[0:8], totalLen)
	if _, err := io.ReadFull(r, payload[8:]); err != nil {
		return p, cleanEOF(err)
	}
	if crc32.ChecksumIEEE(payload) != storedCRC {
		return p, fmt.Errorf("commitlog: %w", codec.ErrCorruptRecord)
	}

	p.Offset = binary.LittleEndian.Uint64(payload[8:16])
	pageLen := binary.LittleEndian.Uint32(payload[16:20])
	if uint64(pageLen) > totalLen-20 {
		return p, fmt.Errorf("commitlog: %w", codec.ErrCorruptRecord)
	}
	p.Page = append([]byte(nil), payload[20:20+pageLen]...)
	return p, nil
}

func cleanEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

// Reader iterates pre-images already written to a log, mirroring
// wal/wal_reader.go's WALReader.Iter built on Go's range-over-func
// iterators.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) Iter() iter.Seq2[PreImage, error] {
	return func(yield func(PreImage, error) bool) {
		for {
			p, err := DecodePreImage(r.r)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(PreImage{}, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}
