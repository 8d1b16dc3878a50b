package codec

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func withTempFile(t *testing.T, fn func(f *os.File)) {
	f, err := os.CreateTemp("", "codec-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	fn(f)
}

func TestDataRecordRoundTrip(t *testing.T) {
	tests := []DataRecord{
		{Kind: RecordKindValue, Key: []byte("a"), Value: []byte("b")},
		{Kind: RecordKindValue, Key: []byte{}, Value: []byte{}},
		{Kind: RecordKindSpill, Key: nil, Value: bytes.Repeat([]byte("x"), 4096)},
	}

	for i, tt := range tests {
		withTempFile(t, func(f *os.File) {
			if err := EncodeDataRecord(f, tt); err != nil {
				t.Fatalf("record %d: encode: %v", i, err)
			}
			f.Seek(0, io.SeekStart)
			got, err := DecodeDataRecord(f)
			if err != nil {
				t.Fatalf("record %d: decode: %v", i, err)
			}
			if got.Kind != tt.Kind || !bytes.Equal(got.Key, tt.Key) || !bytes.Equal(got.Value, tt.Value) {
				t.Fatalf("record %d: mismatch, got %+v want %+v", i, got, tt)
			}
		})
	}
}

func TestDataRecordDetectsCorruption(t *testing.T) {
	withTempFile(t, func(f *os.File) {
		rec := DataRecord{Kind: RecordKindValue, Key: []byte("key"), Value: []byte("value")}
		if err := EncodeDataRecord(f, rec); err != nil {
			t.Fatal(err)
		}

		f.Seek(-1, io.SeekEnd)
		b := make([]byte, 1)
		f.Read(b)
		b[0] ^= 0xFF
		f.Seek(-1, io.SeekEnd)
		f.Write(b)

		f.Seek(0, io.SeekStart)
		if _, err := DecodeDataRecord(f); err == nil {
			t.Fatal("expected corruption error, got nil")
		}
	})
}

func TestDataRecordDetectsTruncation(t *testing.T) {
	rec := DataRecord{Kind: RecordKindValue, Key: []byte("key"), Value: []byte("value")}
	totalLen := 4 + 8 + 1 + 4 + len(rec.Key) + 8 + len(rec.Value)

	for i := 1; i < totalLen; i++ {
		withTempFile(t, func(f *os.File) {
			if err := EncodeDataRecord(f, rec); err != nil {
				t.Fatal(err)
			}
			f.Truncate(int64(i))
			f.Seek(0, io.SeekStart)
			if _, err := DecodeDataRecord(f); err != io.EOF {
				t.Fatalf("truncated to %d: expected EOF, got %v", i, err)
			}
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	dh := DataHeader{AppNum: 1, Salt: 42, KeySize: 8}
	got, err := DecodeDataHeader(dh.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.AppNum != dh.AppNum || got.Salt != dh.Salt || got.KeySize != dh.KeySize {
		t.Fatalf("data header mismatch: %+v", got)
	}

	kh := KeyHeader{AppNum: 1, Salt: 42, KeySize: 8, BlockSize: 4096, BucketCount: 1, N0: 0, P: 0}
	gotK, err := DecodeKeyHeader(kh.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if gotK.BlockSize != kh.BlockSize || gotK.BucketCount != kh.BucketCount {
		t.Fatalf("key header mismatch: %+v", gotK)
	}
}
