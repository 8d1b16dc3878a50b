// Package codec defines the on-disk byte layouts for nudb's three files:
// fixed-width headers plus length/CRC-framed records, little-endian
// throughout. The CRC placement mirrors the teacher's wal.go: a checksum
// over everything that follows it, enabling short-read and corruption
// detection without a second pass over the file.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
)

const (
	DataMagic = uint32(0x6e644b31) // "ndK1"
	KeyMagic  = uint32(0x6e644b32) // "ndK2"
	LogMagic  = uint32(0x6e644b33) // "ndK3"
	Version   = uint16(1)

	DataHeaderSize = 4 + 2 + 16 + 8 + 8 + 2
	KeyHeaderSize  = 4 + 2 + 16 + 8 + 8 + 2 + 2 + 4 + 8 + 1 + 8
	LogHeaderSize  = 4 + 2 + 16 + 8 + 8 + 8 + 4
)

// DataHeader is the fixed preamble of the data file.
type DataHeader struct {
	UID     uuid.UUID
	AppNum  uint64
	Salt    uint64
	KeySize uint16
}

func (h DataHeader) Encode() []byte {
	buf := make([]byte, DataHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], DataMagic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	copy(buf[6:22], h.UID[:])
	binary.LittleEndian.PutUint64(buf[22:30], h.AppNum)
	binary.LittleEndian.PutUint64(buf[30:38], h.Salt)
	binary.LittleEndian.PutUint16(buf[38:40], h.KeySize)
	return buf
}

func DecodeDataHeader(buf []byte) (DataHeader, error) {
	var h DataHeader
	if len(buf) < DataHeaderSize {
		return h, fmt.Errorf("codec: short data header: %d bytes", len(buf))
	}
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != DataMagic {
		return h, fmt.Errorf("codec: bad data file magic %#x", magic)
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != Version {
		return h, fmt.Errorf("codec: unsupported data file version %d", v)
	}
	copy(h.UID[:], buf[6:22])
	h.AppNum = binary.LittleEndian.Uint64(buf[22:30])
	h.Salt = binary.LittleEndian.Uint64(buf[30:38])
	h.KeySize = binary.LittleEndian.Uint16(buf[38:40])
	return h, nil
}

// KeyHeader is the fixed preamble of the key file, carrying the linear
// hashing modulus state (N0, P) alongside the creation parameters.
type KeyHeader struct {
	UID         uuid.UUID
	AppNum      uint64
	Salt        uint64
	KeySize     uint16
	BlockSize   uint16
	LoadFactor  uint32 // fixed-point, fraction of 1<<16
	BucketCount uint64
	N0          uint8
	P           uint64
}

func (h KeyHeader) Encode() []byte {
	buf := make([]byte, KeyHeaderSize)
	o := 0
	binary.LittleEndian.PutUint32(buf[o:o+4], KeyMagic)
	o += 4
	binary.LittleEndian.PutUint16(buf[o:o+2], Version)
	o += 2
	copy(buf[o:o+16], h.UID[:])
	o += 16
	binary.LittleEndian.PutUint64(buf[o:o+8], h.AppNum)
	o += 8
	binary.LittleEndian.PutUint64(buf[o:o+8], h.Salt)
	o += 8
	binary.LittleEndian.PutUint16(buf[o:o+2], h.KeySize)
	o += 2
	binary.LittleEndian.PutUint16(buf[o:o+2], h.BlockSize)
	o += 2
	binary.LittleEndian.PutUint32(buf[o:o+4], h.LoadFactor)
	o += 4
	binary.LittleEndian.PutUint64(buf[o:o+8], h.BucketCount)
	o += 8
	buf[o] = h.N0
	o++
	binary.LittleEndian.PutUint64(buf[o:o+8], h.P)
	o += 8
	return buf
}

func DecodeKeyHeader(buf []byte) (KeyHeader, error) {
	var h KeyHeader
	if len(buf) < KeyHeaderSize {
		return h, fmt.Errorf("codec: short key header: %d bytes", len(buf))
	}
	o := 0
	if magic := binary.LittleEndian.Uint32(buf[o : o+4]); magic != KeyMagic {
		return h, fmt.Errorf("codec: bad key file magic %#x", magic)
	}
	o += 4
	if v := binary.LittleEndian.Uint16(buf[o : o+2]); v != Version {
		return h, fmt.Errorf("codec: unsupported key file version %d", v)
	}
	o += 2
	copy(h.UID[:], buf[o:o+16])
	o += 16
	h.AppNum = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	h.Salt = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	h.KeySize = binary.LittleEndian.Uint16(buf[o : o+2])
	o += 2
	h.BlockSize = binary.LittleEndian.Uint16(buf[o : o+2])
	o += 2
	h.LoadFactor = binary.LittleEndian.Uint32(buf[o : o+4])
	o += 4
	h.BucketCount = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	h.N0 = buf[o]
	o++
	h.P = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	return h, nil
}

// LogHeader records the pre-commit file sizes and bucket count, so recovery
// knows how far to truncate data and key files after replaying pre-images.
type LogHeader struct {
	UID             uuid.UUID
	AppNum          uint64
	PreCommitDataLen uint64
	PreCommitKeyLen  uint64
	PreCommitBuckets uint32
}

func (h LogHeader) Encode() []byte {
	buf := make([]byte, LogHeaderSize)
	o := 0
	binary.LittleEndian.PutUint32(buf[o:o+4], LogMagic)
	o += 4
	binary.LittleEndian.PutUint16(buf[o:o+2], Version)
	o += 2
	copy(buf[o:o+16], h.UID[:])
	o += 16
	binary.LittleEndian.PutUint64(buf[o:o+8], h.AppNum)
	o += 8
	binary.LittleEndian.PutUint64(buf[o:o+8], h.PreCommitDataLen)
	o += 8
	binary.LittleEndian.PutUint64(buf[o:o+8], h.PreCommitKeyLen)
	o += 8
	binary.LittleEndian.PutUint32(buf[o:o+4], h.PreCommitBuckets)
	o += 4
	return buf
}

func DecodeLogHeader(buf []byte) (LogHeader, error) {
	var h LogHeader
	if len(buf) < LogHeaderSize {
		return h, fmt.Errorf("codec: short log header: %d bytes", len(buf))
	}
	o := 0
	if magic := binary.LittleEndian.Uint32(buf[o : o+4]); magic != LogMagic {
		return h, fmt.Errorf("codec: bad log file magic %#x", magic)
	}
	o += 4
	if v := binary.LittleEndian.Uint16(buf[o : o+2]); v != Version {
		return h, fmt.Errorf("codec: unsupported log file version %d", v)
	}
	o += 2
	copy(h.UID[:], buf[o:o+16])
	o += 16
	h.AppNum = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	h.PreCommitDataLen = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	h.PreCommitKeyLen = binary.LittleEndian.Uint64(buf[o : o+8])
	o += 8
	h.PreCommitBuckets = binary.LittleEndian.Uint32(buf[o : o+4])
	o += 4
	return h, nil
}

// crcOf mirrors wal.go's checksum discipline: CRC32-IEEE over the payload
// that follows the checksum field itself.
func crcOf(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}
